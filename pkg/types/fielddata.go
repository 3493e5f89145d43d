package types

import "fmt"

// DataType tags the element type an array was produced with.
type DataType string

const (
	Float64 DataType = "float64"
	Float32 DataType = "float32"
	Int64   DataType = "int64"
	Int32   DataType = "int32"
	Uint8   DataType = "uint8"
)

// DataArray is a named array of fixed-width tuples.
type DataArray struct {
	Name          string    `json:"name"`
	Type          DataType  `json:"type"`
	NumComponents int       `json:"num_components"`
	Values        []float64 `json:"values"`
}

// NewDataArray allocates an array of numTuples zeroed tuples.
func NewDataArray(name string, typ DataType, numComponents, numTuples int) *DataArray {
	if numComponents < 1 {
		numComponents = 1
	}
	return &DataArray{
		Name:          name,
		Type:          typ,
		NumComponents: numComponents,
		Values:        make([]float64, numComponents*numTuples),
	}
}

// NumTuples returns the number of tuples held.
func (a *DataArray) NumTuples() int {
	if a.NumComponents == 0 {
		return 0
	}
	return len(a.Values) / a.NumComponents
}

// Tuple returns the tuple at idx. The slice aliases the array storage.
func (a *DataArray) Tuple(idx int) []float64 {
	off := idx * a.NumComponents
	return a.Values[off : off+a.NumComponents]
}

// SetTuple copies t into the tuple at idx.
func (a *DataArray) SetTuple(idx int, t []float64) error {
	if idx < 0 || idx >= a.NumTuples() {
		return fmt.Errorf("tuple index %d out of range [0,%d) in array %q", idx, a.NumTuples(), a.Name)
	}
	if len(t) != a.NumComponents {
		return fmt.Errorf("tuple width %d does not match %d components of array %q", len(t), a.NumComponents, a.Name)
	}
	copy(a.Tuple(idx), t)
	return nil
}

// FieldData is an ordered collection of named arrays attached to a grid's
// points or cells.
type FieldData struct {
	arrays []*DataArray
	tuples int
}

// NewFieldData returns an empty collection.
func NewFieldData() *FieldData {
	return &FieldData{}
}

// Reserve sets the tuple count new arrays are sized to.
func (fd *FieldData) Reserve(numTuples int) {
	fd.tuples = numTuples
}

// Reserved returns the tuple count set by Reserve.
func (fd *FieldData) Reserved() int {
	return fd.tuples
}

// AddArray appends arr, replacing any array with the same name.
func (fd *FieldData) AddArray(arr *DataArray) {
	for i, a := range fd.arrays {
		if a.Name == arr.Name {
			fd.arrays[i] = arr
			return
		}
	}
	fd.arrays = append(fd.arrays, arr)
}

// GetArray returns the array called name, or nil.
func (fd *FieldData) GetArray(name string) *DataArray {
	for _, a := range fd.arrays {
		if a.Name == name {
			return a
		}
	}
	return nil
}

// Arrays returns the arrays in insertion order.
func (fd *FieldData) Arrays() []*DataArray {
	return fd.arrays
}

// NumberOfArrays returns the number of arrays.
func (fd *FieldData) NumberOfArrays() int {
	return len(fd.arrays)
}
