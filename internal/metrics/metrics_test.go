package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestHandlerExposesCollectors(t *testing.T) {
	ConnectionsTotal.Inc()
	Replies.WithLabelValues("success").Inc()
	RelayedBytes.WithLabelValues("upload").Add(5)

	srv := httptest.NewServer(Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{
		"socksrelay_connections_total",
		"socksrelay_connections_active",
		`socksrelay_replies_total{status="success"}`,
		`socksrelay_relayed_bytes_total{direction="upload"}`,
	} {
		if !strings.Contains(string(body), want) {
			t.Errorf("metrics output missing %s", want)
		}
	}
}
