package planktrack

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
)

// LoadLabels reads the class names the Model was trained on from the given
// text file, one label per line in class index order
func LoadLabels(file string) ([]string, error) {

	f, err := os.Open(file)

	if err != nil {
		return nil, fmt.Errorf("error opening file: %w", err)
	}

	defer f.Close()

	labels, err := ParseLabels(f)

	if err != nil {
		return nil, fmt.Errorf("error reading file %s: %w", file, err)
	}

	return labels, nil
}

// ParseLabels reads labels from r.  Lines are trimmed and blank lines at the
// end of the input are dropped, blank lines in between are kept so class
// indexes stay aligned.
func ParseLabels(r io.Reader) ([]string, error) {

	scanner := bufio.NewScanner(r)

	var labels []string

	for scanner.Scan() {
		labels = append(labels, strings.TrimSpace(scanner.Text()))
	}

	if err := scanner.Err(); err != nil {
		return nil, err
	}

	for len(labels) > 0 && labels[len(labels)-1] == "" {
		labels = labels[:len(labels)-1]
	}

	if len(labels) == 0 {
		return nil, fmt.Errorf("no labels found")
	}

	return labels, nil
}

// LabelName returns the label for a class index, or a generated name when
// the index is outside the label set or its line was blank
func LabelName(labels []string, class int) string {

	if class >= 0 && class < len(labels) && labels[class] != "" {
		return labels[class]
	}

	return fmt.Sprintf("class_%d", class)
}
