package schema

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

const (
	MinCityNameLength = 3
	MaxCityNameLength = 30
)

// use NewCityName to construct a CityName
type CityName struct {
	Name string
}

var CityNameZero = CityName{}

var cityNameChars = regexp.MustCompile("^$|^[a-z][a-z0-9_]*$")

var (
	ErrCityNameInvalid  = errors.New("City names must be only letters, numbers, and single underscore")
	ErrCityNameTooLong  = fmt.Errorf("City names can only be up to %d characters", MaxCityNameLength)
	ErrCityNameTooShort = fmt.Errorf("City names must be at least %d characters", MinCityNameLength)
)

func NewCityName(name string) (CityName, error) {
	normalized, err := normalizeCityName(name)
	if err != nil {
		return CityNameZero, err
	}
	return CityName{normalized}, nil
}

func (cn CityName) String() string {
	return cn.Name
}

func normalizeCityName(cityName string) (string, error) {
	lowered := strings.ToLower(cityName)
	if strings.Contains(lowered, "__") {
		return "", ErrCityNameInvalid
	}
	if !cityNameChars.MatchString(lowered) {
		return "", ErrCityNameInvalid
	}
	if len(lowered) > MaxCityNameLength {
		return "", ErrCityNameTooLong
	}
	if len(lowered) < MinCityNameLength {
		return "", ErrCityNameTooShort
	}
	return lowered, nil
}
