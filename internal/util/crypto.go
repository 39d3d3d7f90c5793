package util

// MaskCode keeps enough of a pairing code to correlate log lines without
// letting the logs be used to join a session.
func MaskCode(code string) string {
	if len(code) <= 4 {
		return "****"
	}
	return code[:4] + "-****"
}
