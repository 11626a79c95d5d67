// Package series provides the dense matrix and sampling primitives used by
// the node traffic loader. Rows index time slots and columns index nodes
// unless stated otherwise.
package series

import (
	"github.com/pkg/errors"
)

// Matrix is a dense row-major float64 matrix.
type Matrix struct {
	Rows int
	Cols int
	Data []float64
}

func NewMatrix(rows, cols int) *Matrix {
	return &Matrix{
		Rows: rows,
		Cols: cols,
		Data: make([]float64, rows*cols),
	}
}

// Empty reports whether the matrix holds no cells.
func (m *Matrix) Empty() bool {
	return m == nil || m.Rows == 0 || m.Cols == 0
}

func (m *Matrix) At(i, j int) float64 {
	return m.Data[i*m.Cols+j]
}

func (m *Matrix) Set(i, j int, v float64) {
	m.Data[i*m.Cols+j] = v
}

// Row returns a view of row i sharing the backing array.
func (m *Matrix) Row(i int) []float64 {
	return m.Data[i*m.Cols : (i+1)*m.Cols]
}

// Col returns a copy of column j.
func (m *Matrix) Col(j int) []float64 {
	out := make([]float64, m.Rows)
	for i := 0; i < m.Rows; i++ {
		out[i] = m.Data[i*m.Cols+j]
	}
	return out
}

// SliceRows returns a copy of rows [start, end).
func (m *Matrix) SliceRows(start, end int) *Matrix {
	out := NewMatrix(end-start, m.Cols)
	copy(out.Data, m.Data[start*m.Cols:end*m.Cols])
	return out
}

// SelectCols returns a copy holding only the given columns, in order.
func (m *Matrix) SelectCols(idx []int) *Matrix {
	out := NewMatrix(m.Rows, len(idx))
	for i := 0; i < m.Rows; i++ {
		row := m.Row(i)
		outRow := out.Row(i)
		for k, j := range idx {
			outRow[k] = row[j]
		}
	}
	return out
}

// ColMeans returns the mean of every column.
func (m *Matrix) ColMeans() []float64 {
	out := make([]float64, m.Cols)
	if m.Rows == 0 {
		return out
	}
	for i := 0; i < m.Rows; i++ {
		row := m.Row(i)
		for j, v := range row {
			out[j] += v
		}
	}
	for j := range out {
		out[j] /= float64(m.Rows)
	}
	return out
}

// Clone returns a deep copy.
func (m *Matrix) Clone() *Matrix {
	out := NewMatrix(m.Rows, m.Cols)
	copy(out.Data, m.Data)
	return out
}

// VStack stacks matrices vertically. All inputs must have the same number
// of columns.
func VStack(ms ...*Matrix) (*Matrix, error) {
	if len(ms) == 0 {
		return nil, errors.New("vstack of nothing")
	}
	cols := ms[0].Cols
	rows := 0
	for _, m := range ms {
		if m.Cols != cols {
			return nil, errors.Errorf("vstack column mismatch: %d != %d", m.Cols, cols)
		}
		rows += m.Rows
	}
	out := NewMatrix(rows, cols)
	off := 0
	for _, m := range ms {
		copy(out.Data[off:], m.Data)
		off += len(m.Data)
	}
	return out, nil
}

// HStack concatenates matrices horizontally. All inputs must have the same
// number of rows. Empty matrices (zero columns) are skipped.
func HStack(ms ...*Matrix) (*Matrix, error) {
	rows := -1
	cols := 0
	for _, m := range ms {
		if m == nil || m.Cols == 0 {
			continue
		}
		if rows == -1 {
			rows = m.Rows
		} else if m.Rows != rows {
			return nil, errors.Errorf("hstack row mismatch: %d != %d", m.Rows, rows)
		}
		cols += m.Cols
	}
	if rows == -1 {
		return NewMatrix(0, 0), nil
	}
	out := NewMatrix(rows, cols)
	off := 0
	for _, m := range ms {
		if m == nil || m.Cols == 0 {
			continue
		}
		for i := 0; i < rows; i++ {
			copy(out.Row(i)[off:off+m.Cols], m.Row(i))
		}
		off += m.Cols
	}
	return out, nil
}
