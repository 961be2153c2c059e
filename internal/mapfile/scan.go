package mapfile

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
)

// record is a keyword and the numbers that follow it, up to the next keyword.
type record struct {
	keyword string
	line    int
	values  []float64
}

func (r record) expect(n int) error {
	if len(r.values) != n {
		return fmt.Errorf("%s needs %d values, got %d", r.keyword, n, len(r.values))
	}
	return nil
}

// finite rejects records carrying NaN or infinite values.
func (r record) finite() error {
	for i, v := range r.values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%s value %d is not finite", r.keyword, i)
		}
	}
	return nil
}

// scanRecords splits the file into records. A number is any token
// strconv.ParseFloat accepts, so hex floats and the inf/nan spellings are
// read as values (finite turns the latter into malformed records). Any other
// token starts a new record, which means a misspelled number such as "1e"
// cuts the record before it short. Numbers before the first keyword are
// dropped.
func scanRecords(r io.Reader) ([]record, error) {
	var records []record

	sc := bufio.NewScanner(r)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := sc.Text()
		if i := strings.IndexByte(line, '#'); i >= 0 {
			line = line[:i]
		}
		for _, tok := range strings.Fields(line) {
			v, err := strconv.ParseFloat(tok, 64)
			if err != nil {
				records = append(records, record{keyword: tok, line: lineNo})
				continue
			}
			if n := len(records); n > 0 {
				records[n-1].values = append(records[n-1].values, v)
			}
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return records, nil
}
