package analytics

import "strconv"

// FormatIndian groups digits the Indian way: the last three together, then
// pairs (1234567 -> 12,34,567).
func FormatIndian(n int64) string {
	neg := n < 0
	s := strconv.FormatInt(n, 10)
	if neg {
		s = s[1:]
	}
	if len(s) > 3 {
		head, tail := s[:len(s)-3], s[len(s)-3:]
		out := make([]byte, 0, len(s)+len(s)/2)
		if len(head)%2 == 1 {
			out = append(out, head[0])
			head = head[1:]
			if len(head) > 0 {
				out = append(out, ',')
			}
		}
		for i := 0; i < len(head); i += 2 {
			out = append(out, head[i], head[i+1])
			if i+2 < len(head) {
				out = append(out, ',')
			}
		}
		s = string(out) + "," + tail
	}
	if neg {
		return "-" + s
	}
	return s
}
