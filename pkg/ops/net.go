package ops

import (
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tagspeak/tagspeak/pkg/interp"
	"github.com/tagspeak/tagspeak/pkg/sandbox"
	"github.com/tagspeak/tagspeak/pkg/value"
	"github.com/tagspeak/tagspeak/tsapi"
)

// HTTPTimeout bounds every request made by the http packet.
const HTTPTimeout = 10 * time.Second

var httpClient = &http.Client{Timeout: HTTPTimeout}

func registerNet(r *interp.Registry) {
	r.Register(interp.Entry{
		Op:      "http",
		Usage:   `[http@"https://host/path"] [http(post)@"https://host/path"]`,
		Summary: "Fetch a URL allowed by network.allow; post sends the last value as the body.",
		Handler: opHTTP,
	})
}

func opHTTP(rt *interp.Runtime, p *tsapi.Packet) (value.Value, error) {
	if err := rt.RequireRoot("http"); err != nil {
		return value.Unit, err
	}
	body := rt.Last()
	raw := interp.ArgText(p)
	if p.Arg != nil && p.Arg.Kind == tsapi.ArgIdent {
		v, err := rt.ArgValue(p)
		if err != nil {
			return value.Unit, err
		}
		if !v.IsUnit() {
			raw = v.String()
		}
	}
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return value.Unit, tsapi.ErrorInvalid("http needs an absolute http(s) URL", [2]string{"url", raw})
	}
	method := http.MethodGet
	switch strings.ToLower(p.ModeText()) {
	case "", "get":
	case "post":
		method = http.MethodPost
	default:
		return value.Unit, tsapi.ErrorInvalid("unknown http mode "+p.ModeText()+"; use get or post")
	}
	if err := rt.CheckGate(sandbox.Request{
		Kind: sandbox.KindNetwork,
		Op:   p.String(),
		Key:  "network:" + u.Host,
		URL:  raw,
	}); err != nil {
		return value.Unit, err
	}

	var reqBody io.Reader
	contentType := "text/plain; charset=utf-8"
	if method == http.MethodPost {
		reqBody = strings.NewReader(body.String())
		if body.Kind() == value.KindDoc {
			contentType = "application/json"
		}
	}
	req, err := http.NewRequestWithContext(rt.Ctx(), method, raw, reqBody)
	if err != nil {
		return value.Unit, tsapi.ErrorIo("building request", raw, err)
	}
	if reqBody != nil {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return value.Unit, tsapi.ErrorIo("http "+strings.ToLower(method), raw, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return value.Unit, tsapi.ErrorIo("reading response", raw, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return value.Unit, tsapi.ErrorIo("http "+strings.ToLower(method), raw, fmt.Errorf("server answered %s", resp.Status))
	}
	return value.Str(string(data)), nil
}
