package services

import (
	"regexp"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// MaxTemplateLength is the messaging platform limit on template bodies, counted in Unicode code
// points after NFC normalisation. An emoji outside the BMP counts once.
const MaxTemplateLength = 1024

var placeholderPattern = regexp.MustCompile(`\{\{\s*([a-zA-Z0-9_]+)\s*\}\}`)

// TemplatePlaceholders returns placeholder names in order of appearance, repeats included.
func TemplatePlaceholders(content string) []string {
	matches := placeholderPattern.FindAllStringSubmatch(content, -1)
	names := make([]string, 0, len(matches))
	for _, m := range matches {
		names = append(names, m[1])
	}
	return names
}

// ValidateTemplateVariables checks a template body against its declared variables. Checks run in
// a fixed order and the first failure is returned as a *TemplateValidationError.
func ValidateTemplateVariables(content string, declared []string) error {
	length := utf8.RuneCountInString(norm.NFC.String(content))
	if length > MaxTemplateLength {
		return &TemplateValidationError{Kind: ErrContentTooLong, Length: length, Limit: MaxTemplateLength}
	}

	used := TemplatePlaceholders(content)

	counts := make(map[string]int, len(used))
	var duplicates []string
	for _, name := range used {
		counts[name]++
		if counts[name] == 2 {
			duplicates = append(duplicates, name)
		}
	}
	if len(duplicates) > 0 {
		return &TemplateValidationError{Kind: ErrDuplicateVariable, Variables: duplicates}
	}

	declaredSet := make(map[string]int, len(declared))
	var repeated []string
	for _, name := range declared {
		declaredSet[name]++
		if declaredSet[name] == 2 {
			repeated = append(repeated, name)
		}
	}
	if len(repeated) > 0 {
		return &TemplateValidationError{Kind: ErrDuplicateVariable, Variables: repeated}
	}

	var undeclared []string
	for _, name := range used {
		if _, ok := declaredSet[name]; !ok {
			undeclared = append(undeclared, name)
		}
	}
	if len(undeclared) > 0 {
		return &TemplateValidationError{Kind: ErrUndeclaredVariable, Variables: undeclared}
	}

	var unused []string
	for _, name := range declared {
		if _, ok := counts[name]; !ok {
			unused = append(unused, name)
		}
	}
	if len(unused) > 0 {
		return &TemplateValidationError{Kind: ErrUnusedDeclaration, Variables: unused}
	}

	if len(declared) == len(used) {
		for i := range declared {
			if declared[i] != used[i] {
				return &TemplateValidationError{Kind: ErrVariableOrderMismatch, Variables: append([]string(nil), used...)}
			}
		}
	}
	return nil
}
