package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"eclipse/internal/config"
	"eclipse/internal/media"
	"eclipse/internal/services"
	"eclipse/internal/testsupport"
)

// recordedCall captures one Bot API request for assertions.
type recordedCall struct {
	Method string
	Fields map[string]string
	Files  map[string]int64
}

type fakeBotAPI struct {
	mu    sync.Mutex
	calls []recordedCall
	fail  map[string]apiResponse
}

func (f *fakeBotAPI) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		parts := strings.Split(r.URL.Path, "/")
		method := parts[len(parts)-1]

		call := recordedCall{Method: method, Fields: map[string]string{}, Files: map[string]int64{}}
		contentType := r.Header.Get("Content-Type")
		switch {
		case strings.HasPrefix(contentType, "multipart/form-data"):
			if err := r.ParseMultipartForm(64 << 20); err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			for key, values := range r.MultipartForm.Value {
				call.Fields[key] = values[0]
			}
			for key, headers := range r.MultipartForm.File {
				call.Files[key] = headers[0].Size
			}
		default:
			var params map[string]any
			_ = json.NewDecoder(r.Body).Decode(&params)
			for key, value := range params {
				call.Fields[key] = fmt.Sprintf("%v", value)
			}
		}

		f.mu.Lock()
		f.calls = append(f.calls, call)
		failure, shouldFail := f.fail[method]
		f.mu.Unlock()

		if shouldFail {
			_ = json.NewEncoder(w).Encode(failure)
			return
		}
		_, _ = w.Write([]byte(`{"ok": true, "result": {"message_id": 7}}`))
	}
}

func (f *fakeBotAPI) callsFor(method string) []recordedCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []recordedCall
	for _, call := range f.calls {
		if call.Method == method {
			out = append(out, call)
		}
	}
	return out
}

func newTestBatcher(t *testing.T) (*Batcher, *fakeBotAPI, *config.Config) {
	t.Helper()
	api := &fakeBotAPI{fail: map[string]apiResponse{}}
	srv := httptest.NewServer(api.handler())
	t.Cleanup(srv.Close)

	cfg := testsupport.NewConfig(t, testsupport.WithAPIBases(srv.URL, ""))
	client := NewClient(cfg, nil)
	return NewBatcher(cfg, client, nil), api, cfg
}

func asset(t *testing.T, dir string, ordinal int, kind media.Kind, delivery media.Delivery, size int64) media.Asset {
	t.Helper()
	path := filepath.Join(dir, fmt.Sprintf("%03d%s", ordinal, kind.Ext()))
	testsupport.WriteFile(t, path, size)
	return media.Asset{Ordinal: ordinal, Kind: kind, LocalPath: path, ByteSize: size, Delivery: delivery}
}

func TestSendMessage(t *testing.T) {
	batcher, api, _ := newTestBatcher(t)

	msg, err := batcher.client.SendMessage(context.Background(), 42, "hello")
	if err != nil {
		t.Fatal(err)
	}
	if msg.MessageID != 7 {
		t.Fatalf("message id = %d", msg.MessageID)
	}
	calls := api.callsFor("sendMessage")
	if len(calls) != 1 || calls[0].Fields["text"] != "hello" {
		t.Fatalf("calls = %+v", calls)
	}
}

func TestAPIErrorMapping(t *testing.T) {
	batcher, api, _ := newTestBatcher(t)
	api.fail["sendMessage"] = apiResponse{OK: false, ErrorCode: 429, Description: "Too Many Requests"}

	_, err := batcher.client.SendMessage(context.Background(), 42, "hello")
	if !errors.Is(err, services.ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}

	api.fail["sendMessage"] = apiResponse{OK: false, ErrorCode: 400, Description: "Bad Request"}
	_, err = batcher.client.SendMessage(context.Background(), 42, "hello")
	if !errors.Is(err, services.ErrTransferFailed) {
		t.Fatalf("expected ErrTransferFailed, got %v", err)
	}
}

func TestDeliverSinglePhoto(t *testing.T) {
	batcher, api, _ := newTestBatcher(t)
	dir := t.TempDir()
	assets := []media.Asset{asset(t, dir, 0, media.KindPhoto, media.DeliveryInline, 2048)}

	report, err := batcher.Deliver(context.Background(), 42, assets, "golden hour")
	if err != nil {
		t.Fatal(err)
	}
	if report.Delivered != 1 || report.Dropped != 0 || report.Rejected != 0 {
		t.Fatalf("report = %+v", report)
	}
	calls := api.callsFor("sendPhoto")
	if len(calls) != 1 {
		t.Fatalf("sendPhoto calls = %d", len(calls))
	}
	if calls[0].Fields["caption"] != "golden hour" {
		t.Fatalf("caption = %q", calls[0].Fields["caption"])
	}
	if calls[0].Files["photo"] != 2048 {
		t.Fatalf("files = %+v", calls[0].Files)
	}
}

func TestDeliverSingleVideoStreamingHint(t *testing.T) {
	batcher, api, _ := newTestBatcher(t)
	assets := []media.Asset{asset(t, t.TempDir(), 0, media.KindVideo, media.DeliveryInline, 4096)}

	if _, err := batcher.Deliver(context.Background(), 42, assets, ""); err != nil {
		t.Fatal(err)
	}
	calls := api.callsFor("sendVideo")
	if len(calls) != 1 || calls[0].Fields["supports_streaming"] != "true" {
		t.Fatalf("calls = %+v", calls)
	}
}

func TestDeliverGroupCapsAndReportsDrop(t *testing.T) {
	batcher, api, cfg := newTestBatcher(t)
	dir := t.TempDir()

	var assets []media.Asset
	for i := 0; i < 11; i++ {
		assets = append(assets, asset(t, dir, i, media.KindPhoto, media.DeliveryInline, 128))
	}

	report, err := batcher.Deliver(context.Background(), 42, assets, "big album")
	if err != nil {
		t.Fatal(err)
	}
	if report.Delivered != cfg.Telegram.MaxGroupSize || report.Dropped != 1 {
		t.Fatalf("report = %+v", report)
	}

	calls := api.callsFor("sendMediaGroup")
	if len(calls) != 1 {
		t.Fatalf("sendMediaGroup calls = %d", len(calls))
	}
	if len(calls[0].Files) != cfg.Telegram.MaxGroupSize {
		t.Fatalf("group carried %d files", len(calls[0].Files))
	}

	var descriptors []struct {
		Type    string `json:"type"`
		Media   string `json:"media"`
		Caption string `json:"caption"`
	}
	if err := json.Unmarshal([]byte(calls[0].Fields["media"]), &descriptors); err != nil {
		t.Fatal(err)
	}
	if len(descriptors) != cfg.Telegram.MaxGroupSize {
		t.Fatalf("descriptors = %d", len(descriptors))
	}
	// Caption rides only on the first entry, with the drop note appended.
	if !strings.Contains(descriptors[0].Caption, "big album") || !strings.Contains(descriptors[0].Caption, "1 item(s) dropped") {
		t.Fatalf("first caption = %q", descriptors[0].Caption)
	}
	for i, d := range descriptors[1:] {
		if d.Caption != "" {
			t.Fatalf("descriptor %d carries a caption", i+1)
		}
		if !strings.HasPrefix(d.Media, "attach://") {
			t.Fatalf("descriptor %d media = %q", i+1, d.Media)
		}
	}
}

func TestDeliverAllRejectedFailsWithoutSending(t *testing.T) {
	batcher, api, _ := newTestBatcher(t)
	dir := t.TempDir()
	assets := []media.Asset{
		asset(t, dir, 0, media.KindVideo, media.DeliveryRejected, 1024),
		asset(t, dir, 1, media.KindVideo, media.DeliveryRejected, 1024),
	}

	_, err := batcher.Deliver(context.Background(), 42, assets, "")
	if !errors.Is(err, services.ErrTranscodeExhausted) {
		t.Fatalf("expected ErrTranscodeExhausted, got %v", err)
	}
	if len(api.calls) != 0 {
		t.Fatalf("api was called %d times", len(api.calls))
	}
}

func TestDeliverRejectedSummaryInCaption(t *testing.T) {
	batcher, api, _ := newTestBatcher(t)
	dir := t.TempDir()
	assets := []media.Asset{
		asset(t, dir, 0, media.KindPhoto, media.DeliveryInline, 512),
		asset(t, dir, 1, media.KindVideo, media.DeliveryRejected, 3*1024*1024),
	}

	report, err := batcher.Deliver(context.Background(), 42, assets, "mixed")
	if err != nil {
		t.Fatal(err)
	}
	if report.Delivered != 1 || report.Rejected != 1 {
		t.Fatalf("report = %+v", report)
	}
	calls := api.callsFor("sendPhoto")
	if len(calls) != 1 {
		t.Fatalf("sendPhoto calls = %d", len(calls))
	}
	caption := calls[0].Fields["caption"]
	if !strings.Contains(caption, "1 item(s) too large to send") || !strings.Contains(caption, "3.0 MiB") {
		t.Fatalf("caption = %q", caption)
	}
}

func TestDeliverMixedGroupAndDocument(t *testing.T) {
	batcher, api, _ := newTestBatcher(t)
	dir := t.TempDir()
	assets := []media.Asset{
		asset(t, dir, 0, media.KindPhoto, media.DeliveryInline, 256),
		asset(t, dir, 1, media.KindVideo, media.DeliveryInline, 256),
		asset(t, dir, 2, media.KindVideo, media.DeliveryDocument, 256),
	}

	report, err := batcher.Deliver(context.Background(), 42, assets, "")
	if err != nil {
		t.Fatal(err)
	}
	if report.Delivered != 3 {
		t.Fatalf("report = %+v", report)
	}
	if len(api.callsFor("sendMediaGroup")) != 1 || len(api.callsFor("sendDocument")) != 1 {
		t.Fatalf("calls = %+v", api.calls)
	}
}
