package signalstore

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"math"
	"os"
	"path/filepath"

	"github.com/Zhouziyuya/Sound-Source-Localization/internal/errdefs"
)

// Matrix files are raw little-endian float64 payloads with a small header:
// 4-byte magic, uint32 rows, uint32 cols, then rows*cols values row-major.
const (
	matrixMagic = "SSLM"
	matrixExt   = ".f64"
)

const maxMatrixDim = 1 << 24

// FileStore loads signal matrices from a directory tree rooted at Root.
type FileStore struct {
	Root string
}

// NewFileStore creates a store over the given root directory.
func NewFileStore(root string) *FileStore {
	return &FileStore{Root: root}
}

// LoadMatrix reads the matrix file for key. A missing file is a
// NotFoundError; a malformed file is a ValidationError.
func (s *FileStore) LoadMatrix(key Key) ([][]float64, error) {
	path := filepath.Join(s.Root, filepath.FromSlash(key.Path())+matrixExt)

	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, errdefs.NotFound(key.Name())
		}
		return nil, fmt.Errorf("signalstore: open %s: %w", path, err)
	}
	defer f.Close()

	matrix, err := readMatrix(bufio.NewReader(f))
	if err != nil {
		return nil, fmt.Errorf("signalstore: %s: %w", key.Name(), err)
	}
	return matrix, nil
}

func readMatrix(r io.Reader) ([][]float64, error) {
	var magic [4]byte
	if _, err := io.ReadFull(r, magic[:]); err != nil {
		return nil, errdefs.Validationf("matrix header truncated: %v", err)
	}
	if string(magic[:]) != matrixMagic {
		return nil, errdefs.Validationf("bad matrix magic %q", magic[:])
	}

	var rows, cols uint32
	if err := binary.Read(r, binary.LittleEndian, &rows); err != nil {
		return nil, errdefs.Validationf("matrix header truncated: %v", err)
	}
	if err := binary.Read(r, binary.LittleEndian, &cols); err != nil {
		return nil, errdefs.Validationf("matrix header truncated: %v", err)
	}
	if rows == 0 || cols == 0 {
		return nil, errdefs.Validationf("matrix is empty (%dx%d)", rows, cols)
	}
	if rows > maxMatrixDim || cols > maxMatrixDim {
		return nil, errdefs.Validationf("matrix dimensions out of range (%dx%d)", rows, cols)
	}

	matrix := make([][]float64, rows)
	buf := make([]byte, 8*int(cols))
	for i := range matrix {
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, errdefs.Validationf("matrix payload truncated at row %d: %v", i, err)
		}
		row := make([]float64, cols)
		for j := range row {
			bits := binary.LittleEndian.Uint64(buf[8*j:])
			row[j] = math.Float64frombits(bits)
		}
		matrix[i] = row
	}
	return matrix, nil
}

// WriteMatrix writes a matrix file for key under root, creating the key's
// directory as needed. Used by tests and data preparation tooling.
func WriteMatrix(root string, key Key, matrix [][]float64) error {
	if len(matrix) == 0 || len(matrix[0]) == 0 {
		return errdefs.Validationf("write: matrix is empty")
	}
	cols := len(matrix[0])
	for i, row := range matrix {
		if len(row) != cols {
			return errdefs.Validationf("write: row %d has %d samples, want %d", i, len(row), cols)
		}
	}

	path := filepath.Join(root, filepath.FromSlash(key.Path())+matrixExt)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("signalstore: mkdir: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("signalstore: create %s: %w", path, err)
	}

	if err := writeMatrixTo(f, matrix, cols); err != nil {
		f.Close()
		return fmt.Errorf("signalstore: write %s: %w", path, err)
	}
	// A short write can surface at close time; do not discard it.
	if err := f.Close(); err != nil {
		return fmt.Errorf("signalstore: close %s: %w", path, err)
	}
	return nil
}

func writeMatrixTo(f io.Writer, matrix [][]float64, cols int) error {
	w := bufio.NewWriter(f)
	if _, err := w.WriteString(matrixMagic); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(len(matrix))); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(cols)); err != nil {
		return err
	}
	buf := make([]byte, 8)
	for _, row := range matrix {
		for _, v := range row {
			binary.LittleEndian.PutUint64(buf, math.Float64bits(v))
			if _, err := w.Write(buf); err != nil {
				return err
			}
		}
	}
	return w.Flush()
}
