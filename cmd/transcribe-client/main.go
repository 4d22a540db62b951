// Command transcribe-client posts a local audio file to a running
// transcribe-api and prints the response.
package main

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
)

func main() {
	url := flag.String("url", "http://localhost:8000/transcribe", "transcribe endpoint")
	asJSON := flag.Bool("json", false, "send the file as a base64 data URL instead of multipart")
	timeout := flag.Duration("timeout", 2*time.Minute, "request timeout")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [flags] <audio-file>\n", filepath.Base(os.Args[0]))
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	status, body, err := send(ctx, http.DefaultClient, *url, flag.Arg(0), *asJSON)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Status: %d\n", status)
	fmt.Println(prettyJSON(body))
	if status != http.StatusOK {
		os.Exit(1)
	}
}

// send uploads path to url and returns the status code and raw response body.
func send(ctx context.Context, client *http.Client, url, path string, asJSON bool) (int, []byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, nil, err
	}

	var (
		body        io.Reader
		contentType string
	)
	if asJSON {
		body, contentType, err = jsonBody(path, data)
	} else {
		body, contentType, err = multipartBody(path, data)
	}
	if err != nil {
		return 0, nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, body)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("read response: %w", err)
	}
	return resp.StatusCode, respBody, nil
}

func multipartBody(path string, data []byte) (io.Reader, string, error) {
	buf := &bytes.Buffer{}
	w := multipart.NewWriter(buf)
	part, err := w.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(data); err != nil {
		return nil, "", err
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return buf, w.FormDataContentType(), nil
}

func jsonBody(path string, data []byte) (io.Reader, string, error) {
	format := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	if format == "" {
		format = "mp3"
	}
	payload := map[string]string{
		"audio": "data:audio/" + format + ";base64," + base64.StdEncoding.EncodeToString(data),
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, "", err
	}
	return bytes.NewReader(b), "application/json", nil
}

func prettyJSON(b []byte) string {
	var out bytes.Buffer
	if err := json.Indent(&out, b, "", "  "); err != nil {
		return string(b)
	}
	return out.String()
}
