package show

import "crypto/rand"

// randomCode draws n characters from the alphabet using crypto/rand.
// The modulo bias over a 36-character alphabet is negligible for join
// codes; collisions are handled by the registry's retry loop anyway.
func randomCode(alphabet string, n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	out := make([]byte, n)
	for i, b := range buf {
		out[i] = alphabet[int(b)%len(alphabet)]
	}
	return string(out), nil
}
