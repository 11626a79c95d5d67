package schema

import (
	"fmt"
	"strings"
	"testing"
)

func TestNormalizeCityName(t *testing.T) {
	suite := []struct {
		desc      string
		input     string
		expectStr string
		expectErr error
	}{
		{"Lowers", "CHICAGO", "chicago", nil},
		{"Too short", "ab", "", ErrCityNameTooShort},
		{"Too long", strings.Repeat("a", 31), "", ErrCityNameTooLong},
		{"Invalid chars", "abc-123", "", ErrCityNameInvalid},
		{"Starts with number", "1abc", "", ErrCityNameInvalid},
		{"Contains multi-underscore", "a__b", "", ErrCityNameInvalid},
	}

	for i, testCase := range suite {
		testName := fmt.Sprintf("%d %s", i, testCase.desc)
		t.Run(testName, func(t *testing.T) {
			gotStr, gotErr := normalizeCityName(testCase.input)
			if want, got := testCase.expectErr, gotErr; want != got {
				t.Errorf("Expected error %v, got %v", want, got)
			}
			if want, got := testCase.expectStr, gotStr; want != got {
				t.Errorf("Expected %v, got %v", want, got)
			}
		})
	}
}

func TestNormalizeDatasetKind(t *testing.T) {
	suite := []struct {
		desc      string
		input     string
		expectStr string
		expectErr error
	}{
		{"Lowers", "BIKE", "bike", nil},
		{"Too short", "ab", "", ErrDatasetKindTooShort},
		{"Too long", strings.Repeat("a", 51), "", ErrDatasetKindTooLong},
		{"Invalid chars", "abc-123", "", ErrDatasetKindInvalid},
		{"Starts with number", "1abc", "", ErrDatasetKindInvalid},
		{"Contains multi-underscore", "a__b", "", ErrDatasetKindInvalid},
	}

	for i, testCase := range suite {
		testName := fmt.Sprintf("%d %s", i, testCase.desc)
		t.Run(testName, func(t *testing.T) {
			gotStr, gotErr := normalizeDatasetKind(testCase.input)
			if want, got := testCase.expectErr, gotErr; want != got {
				t.Errorf("Expected error %v, got %v", want, got)
			}
			if want, got := testCase.expectStr, gotStr; want != got {
				t.Errorf("Expected %v, got %v", want, got)
			}
		})
	}
}

func TestNormalizeFieldName(t *testing.T) {
	suite := []struct {
		desc      string
		input     string
		expectStr string
		expectErr error
	}{
		{"Lowers", "Per_Capita_Income", "per_capita_income", nil},
		{"Empty", "", "", ErrFieldNameTooShort},
		{"Too long", strings.Repeat("a", 61), "", ErrFieldNameTooLong},
		{"Invalid chars", "abc 123", "", ErrFieldNameInvalid},
		{"Starts with number", "1abc", "", ErrFieldNameInvalid},
	}

	for i, testCase := range suite {
		testName := fmt.Sprintf("%d %s", i, testCase.desc)
		t.Run(testName, func(t *testing.T) {
			gotStr, gotErr := normalizeFieldName(testCase.input)
			if want, got := testCase.expectErr, gotErr; want != got {
				t.Errorf("Expected error %v, got %v", want, got)
			}
			if want, got := testCase.expectStr, gotStr; want != got {
				t.Errorf("Expected %v, got %v", want, got)
			}
		})
	}
}
