package logparse

import (
	"regexp"
	"strconv"

	"github.com/lucasnoah/fixfactory/internal/pipeline"
)

// locationPatterns each capture (path, line).
var locationPatterns = []*regexp.Regexp{
	// [calculator.py:25]
	regexp.MustCompile(`\[([^\[\]\s:]+):(\d+)\]`),
	// File "app/views.py", line 42
	regexp.MustCompile(`File "([^"]+)", line (\d+)`),
	// at com.example.Foo.bar(Foo.java:10)
	regexp.MustCompile(`\(([^\s():]+\.\w+):(\d+)\)`),
	// at src/handler.js:10
	regexp.MustCompile(`\bat ([^\s:()]+\.\w+):(\d+)`),
	// in /var/www/index.php on line 7
	regexp.MustCompile(`\bin (\S+\.\w+) on line (\d+)`),
	// calculator.py:25, /src/app/main.go:42:7
	regexp.MustCompile(`(?:^|[\s(\[])(/?(?:[\w.\-]+/)*[\w\-]+\.[A-Za-z]{1,5}):(\d+)`),
}

type locMatch struct {
	pos int
	loc pipeline.Location
}

// lastLocation scans every line of a block and returns the last location
// token found. Within a line the right-most token wins.
func lastLocation(lines []string) *pipeline.Location {
	var found *pipeline.Location
	for _, line := range lines {
		if m, ok := lineLocation(line); ok {
			l := m.loc
			found = &l
		}
	}
	return found
}

func lineLocation(line string) (locMatch, bool) {
	best := locMatch{pos: -1}
	for _, re := range locationPatterns {
		for _, sm := range re.FindAllStringSubmatchIndex(line, -1) {
			pathStart := sm[2]
			if pathStart <= best.pos {
				continue
			}
			n, err := strconv.Atoi(line[sm[4]:sm[5]])
			if err != nil || n <= 0 {
				continue
			}
			best = locMatch{
				pos: pathStart,
				loc: pipeline.Location{File: line[sm[2]:sm[3]], Line: n},
			}
		}
	}
	return best, best.pos >= 0
}
