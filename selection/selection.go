package selection

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/AlecAivazis/survey/v2"
	"github.com/AlecAivazis/survey/v2/terminal"
	"github.com/samber/lo"
)

var ErrEmpty = errors.New("nothing selected")

type OutOfRangeError struct {
	N   int
	Max int
}

func (e *OutOfRangeError) Error() string {
	return fmt.Sprintf("%d is out of range 1-%d", e.N, e.Max)
}

// Parse parses a selection such as "1,2,5 1-3" over n numbered entries and
// returns the zero-based indices in the order they were given. Entries
// selected more than once are returned once.
func Parse(input string, n int) ([]int, error) {
	fields := strings.FieldsFunc(input, func(r rune) bool { return r == ',' || unicode.IsSpace(r) })
	if len(fields) == 0 {
		return nil, ErrEmpty
	}

	var out []int
	for _, field := range fields {
		from, to, isRange := strings.Cut(field, "-")
		if !isRange {
			to = from
		}

		first, err := parseNumber(from, n)
		if nil != err {
			return nil, err
		}

		last, err := parseNumber(to, n)
		if nil != err {
			return nil, err
		}

		if first > last {
			return nil, fmt.Errorf("invalid range %q: start is after end", field)
		}

		for i := first; i <= last; i++ {
			out = append(out, i-1)
		}
	}

	return lo.Uniq(out), nil
}

func parseNumber(s string, n int) (int, error) {
	v, err := strconv.Atoi(s)
	if nil != err {
		return 0, fmt.Errorf("invalid selection %q: not a number", s)
	}

	if v < 1 || v > n {
		return 0, &OutOfRangeError{N: v, Max: n}
	}

	return v, nil
}

// Ask prompts until a valid selection over n entries is entered.
func Ask(stdin terminal.FileReader, stdout terminal.FileWriter, n int) ([]int, error) {
	var answer string
	prompt := &survey.Input{ //nolint:exhaustruct
		Message: "Results to save (eg: 1,2,5 1-3):",
	}
	askOpts := []survey.AskOpt{
		survey.WithValidator(survey.Required),
		survey.WithValidator(func(ans any) error {
			_, err := Parse(ans.(string), n) //nolint:forcetypeassert
			return err
		}),
		survey.WithStdio(stdin, stdout, stdout),
		survey.WithShowCursor(true),
	}
	if err := survey.AskOne(prompt, &answer, askOpts...); nil != err {
		return nil, fmt.Errorf("failed to ask for selection: %v", err)
	}

	return Parse(answer, n)
}

// Pick returns the entries of items selected interactively.
func Pick[T any](stdin terminal.FileReader, stdout terminal.FileWriter, items []T) ([]T, error) {
	if len(items) == 0 {
		return nil, ErrEmpty
	}

	indices, err := Ask(stdin, stdout, len(items))
	if nil != err {
		return nil, err
	}

	return lo.Map(indices, func(i int, _ int) T { return items[i] }), nil
}
