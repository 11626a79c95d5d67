package schema

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

const (
	MinDatasetKindLength = 3
	MaxDatasetKindLength = 50
)

// DatasetKind identifies the kind of series stored for a city, e.g.
// "bike", "metro", "taxi", "demographic". Use NewDatasetKind to
// construct one.
type DatasetKind struct {
	Name string
}

var DatasetKindZero = DatasetKind{}

var datasetKindChars = regexp.MustCompile("^$|^[a-z][a-z0-9_]*$")

var (
	ErrDatasetKindInvalid  = errors.New("Dataset kinds must be only letters, numbers, and single underscore")
	ErrDatasetKindTooLong  = fmt.Errorf("Dataset kinds can only be up to %d characters", MaxDatasetKindLength)
	ErrDatasetKindTooShort = fmt.Errorf("Dataset kinds must be at least %d characters", MinDatasetKindLength)
)

func NewDatasetKind(name string) (DatasetKind, error) {
	normalized, err := normalizeDatasetKind(name)
	if err != nil {
		return DatasetKindZero, err
	}
	return DatasetKind{normalized}, nil
}

func (dk DatasetKind) String() string {
	return dk.Name
}

func normalizeDatasetKind(kind string) (string, error) {
	lowered := strings.ToLower(kind)
	if strings.Contains(lowered, "__") {
		return "", ErrDatasetKindInvalid
	}
	if !datasetKindChars.MatchString(lowered) {
		return "", ErrDatasetKindInvalid
	}
	if len(lowered) > MaxDatasetKindLength {
		return "", ErrDatasetKindTooLong
	}
	if len(lowered) < MinDatasetKindLength {
		return "", ErrDatasetKindTooShort
	}
	return lowered, nil
}
