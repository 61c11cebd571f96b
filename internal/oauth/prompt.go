package oauth

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
)

// PromptCode prints authURL with instructions and reads one line from in:
// either the bare code or the whole redirect URL.
func PromptCode(in io.Reader, out io.Writer, authURL string) (string, error) {
	fmt.Fprintln(out, "\n1. Visit this URL in your browser:")
	fmt.Fprintf(out, "\n%s\n\n", authURL)
	fmt.Fprintln(out, "2. Authorize the application")
	fmt.Fprintln(out, "3. Copy the code (or the whole address) from the redirect URL")
	fmt.Fprint(out, "\nPlease enter api code:\n")

	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("failed to read authorization code: %w", err)
	}
	line = strings.TrimSpace(line)
	if line == "" {
		return "", errors.New("no authorization code entered")
	}
	return line, nil
}
