package adapthttp_test

import (
	"net/url"
	"strconv"
	"testing"
)

func jsonNumber(n int64) string { return strconv.FormatInt(n, 10) }

func mustURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatal(err)
	}
	return u
}
