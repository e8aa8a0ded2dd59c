package payload

import (
	"fmt"
	"strconv"
	"strings"
)

type segment struct {
	key   string
	index int // -1 when the segment addresses an object key
}

// parsePath splits a field path such as "$.a.b[0].c" or "a.b" into segments.
func parsePath(path string) ([]segment, error) {
	p := strings.TrimPrefix(path, "$")
	p = strings.TrimPrefix(p, ".")
	if p == "" {
		return nil, fmt.Errorf("empty field path %q", path)
	}

	var segs []segment
	for _, part := range strings.Split(p, ".") {
		if part == "" {
			return nil, fmt.Errorf("empty segment in field path %q", path)
		}
		key, rest, hasIndex := strings.Cut(part, "[")
		if key != "" {
			segs = append(segs, segment{key: key, index: -1})
		}
		for hasIndex {
			var idx string
			idx, rest, _ = strings.Cut(rest, "]")
			n, err := strconv.Atoi(idx)
			if err != nil || n < 0 {
				return nil, fmt.Errorf("bad index %q in field path %q", idx, path)
			}
			segs = append(segs, segment{index: n})
			if rest == "" {
				break
			}
			if !strings.HasPrefix(rest, "[") {
				return nil, fmt.Errorf("unexpected %q in field path %q", rest, path)
			}
			rest = rest[1:]
		}
	}
	return segs, nil
}
