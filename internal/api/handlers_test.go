package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"path/filepath"
	"strings"
	"testing"

	"storyforge.app/story-forge/internal/apperr"
	"storyforge.app/story-forge/internal/auth"
	"storyforge.app/story-forge/internal/core"
	"storyforge.app/story-forge/internal/elevenlabs"
	"storyforge.app/story-forge/internal/llm"
	"storyforge.app/story-forge/internal/logging"
	"storyforge.app/story-forge/internal/objectstore"
	"storyforge.app/story-forge/internal/store"
)

type stubGenerator struct {
	completion llm.Completion
}

func (g *stubGenerator) Complete(context.Context, llm.CompletionRequest) (*llm.Completion, error) {
	c := g.completion
	return &c, nil
}

type stubTranscriber struct{ text string }

func (s stubTranscriber) Transcribe(_ context.Context, _ string, audio io.Reader) (string, error) {
	_, _ = io.Copy(io.Discard, audio)
	return s.text, nil
}

// fakeVendor answers the speech and storage endpoints the handlers reach.
func fakeVendor(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasPrefix(r.URL.Path, "/text-to-speech/"):
			w.Header().Set("Content-Type", "audio/mpeg")
			_, _ = w.Write([]byte("mp3-bytes"))
		case r.URL.Path == "/convai/agents/known":
			_, _ = io.WriteString(w, `{"agent_id":"known","name":"Forge Agent"}`)
		case strings.HasPrefix(r.URL.Path, "/convai/agents/"):
			w.WriteHeader(http.StatusNotFound)
			_, _ = io.WriteString(w, `{"detail":{"message":"Agent not found"}}`)
		case strings.HasPrefix(r.URL.Path, "/storage/v1/object/"):
			_, _ = io.WriteString(w, `{"Key":"images/x"}`)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

type harness struct {
	router http.Handler
	store  *store.Store
	gen    *stubGenerator
}

func newHarness(t *testing.T, repo core.Repository, secret string) *harness {
	t.Helper()
	vendor := fakeVendor(t)
	logger := logging.Discard()

	var st *store.Store
	if repo == nil {
		var err error
		st, err = store.Open(filepath.Join(t.TempDir(), "api.db"))
		if err != nil {
			t.Fatalf("open store: %v", err)
		}
		t.Cleanup(func() { _ = st.Close() })
		repo = st
	}

	gen := &stubGenerator{completion: llm.Completion{Text: "Here are three hooks for your launch."}}
	speech := elevenlabs.NewClient(elevenlabs.Config{APIKey: "xi-test", BaseURL: vendor.URL})
	blobs := objectstore.New(objectstore.Config{BaseURL: vendor.URL, ServiceRoleKey: "service", Bucket: "images"})

	posts := core.NewPostService(repo, logger)
	handler := NewAPIHandler(Services{
		Chat:  core.NewChatService(repo, gen, logger),
		Posts: posts,
		Voice: core.NewVoiceService(core.VoiceDeps{
			Repo:        repo,
			Generator:   gen,
			Transcriber: stubTranscriber{text: "give me a post about coffee"},
			Speech:      speech,
			Posts:       posts,
			VoiceID:     "voice-1",
			Logger:      logger,
		}),
		Media: core.NewMediaService(blobs, repo, logger),
		Diagnostics: core.NewDiagnosticsService(core.DiagnosticsDeps{
			Repo:       repo,
			Blobs:      blobs,
			Speech:     speech,
			Generator:  gen,
			StoreReady: st != nil,
			Logger:     logger,
		}),
		Issuer: auth.NewIssuer(secret),
		Logger: logger,
	})
	return &harness{router: NewRouter(handler), store: st, gen: gen}
}

func (h *harness) do(t *testing.T, req *http.Request) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	rr := httptest.NewRecorder()
	h.router.ServeHTTP(rr, req)
	var body map[string]any
	if strings.HasPrefix(rr.Header().Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
			t.Fatalf("decode body %q: %v", rr.Body.String(), err)
		}
	}
	return rr, body
}

func jsonRequest(method, target, body string) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func multipartRequest(t *testing.T, target, field, filename, contentType string, data []byte, fields map[string]string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatal(err)
		}
	}
	if data != nil {
		hdr := textproto.MIMEHeader{}
		hdr.Set("Content-Disposition", `form-data; name="`+field+`"; filename="`+filename+`"`)
		hdr.Set("Content-Type", contentType)
		part, err := mw.CreatePart(hdr)
		if err != nil {
			t.Fatal(err)
		}
		_, _ = part.Write(data)
	}
	if err := mw.Close(); err != nil {
		t.Fatal(err)
	}
	req := httptest.NewRequest(http.MethodPost, target, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestHealth(t *testing.T) {
	h := newHarness(t, nil, "")
	rr, body := h.do(t, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	if rr.Code != http.StatusOK || body["status"] != "ok" {
		t.Fatalf("health = %d %v", rr.Code, body)
	}
}

func TestChatThenHistory(t *testing.T) {
	h := newHarness(t, nil, "")

	rr, body := h.do(t, jsonRequest(http.MethodPost, "/api/chat", `{"message":"launch ideas"}`))
	if rr.Code != http.StatusOK {
		t.Fatalf("chat status = %d body %v", rr.Code, body)
	}
	if body["message"] != h.gen.completion.Text {
		t.Fatalf("chat message = %v", body["message"])
	}

	rr, body = h.do(t, jsonRequest(http.MethodPost, "/api/chat", `{"message":"saved","response":"as-is","source":"voice_conversation"}`))
	if rr.Code != http.StatusOK || body["success"] != true || body["id"] == "" {
		t.Fatalf("stored chat = %d %v", rr.Code, body)
	}

	rr, body = h.do(t, httptest.NewRequest(http.MethodGet, "/api/chat-history?limit=10", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("history status = %d", rr.Code)
	}
	chats, _ := body["chats"].([]any)
	if len(chats) != 2 {
		t.Fatalf("chats = %d, want 2", len(chats))
	}
	var stored map[string]any
	for _, c := range chats {
		if turn := c.(map[string]any); turn["response"] == "as-is" {
			stored = turn
		}
	}
	if stored == nil || stored["source"] != "voice_conversation" {
		t.Fatalf("stored turn = %v", stored)
	}

	rr, body = h.do(t, httptest.NewRequest(http.MethodDelete, "/api/chat-history?id="+stored["id"].(string), nil))
	if rr.Code != http.StatusOK || body["success"] != true {
		t.Fatalf("delete = %d %v", rr.Code, body)
	}
}

func TestChatRequiresMessage(t *testing.T) {
	h := newHarness(t, nil, "")
	rr, body := h.do(t, jsonRequest(http.MethodPost, "/api/chat", `{"message":"  "}`))
	if rr.Code != http.StatusBadRequest || body["error"] != "Message is required" {
		t.Fatalf("got %d %v", rr.Code, body)
	}
}

func TestUnconfiguredStore(t *testing.T) {
	h := newHarness(t, core.UnavailableRepository(apperr.Config(store.MissingConfigMessage)), "")

	rr, body := h.do(t, httptest.NewRequest(http.MethodGet, "/api/chat-history", nil))
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", rr.Code)
	}
	if body["error"] != store.MissingConfigMessage {
		t.Fatalf("error = %v", body["error"])
	}
	chats, ok := body["chats"].([]any)
	if !ok || len(chats) != 0 {
		t.Fatalf("chats = %#v, want empty list", body["chats"])
	}

	rr, body = h.do(t, httptest.NewRequest(http.MethodGet, "/api/posts-history", nil))
	if rr.Code != http.StatusInternalServerError || body["posts"] == nil {
		t.Fatalf("posts = %d %v", rr.Code, body)
	}
}

func TestPostCreateAndPartialUpdate(t *testing.T) {
	h := newHarness(t, nil, "")

	rr, body := h.do(t, jsonRequest(http.MethodPost, "/api/posts-history",
		`{"title":"Brew day","content":"Coffee tips","platform":"instagram","tags":["coffee"],"user_prompt":"coffee","metadata":{"keep":1,"drop":2}}`))
	if rr.Code != http.StatusOK || body["message"] != "Post stored successfully" {
		t.Fatalf("create = %d %v", rr.Code, body)
	}
	id := body["id"].(string)

	rr, body = h.do(t, jsonRequest(http.MethodPut, "/api/posts-history",
		`{"id":"`+id+`","status":"published","user_prompt":null,"metadata":{"drop":null,"added":true}}`))
	if rr.Code != http.StatusOK {
		t.Fatalf("update = %d %v", rr.Code, body)
	}
	post := body["post"].(map[string]any)
	if post["status"] != "published" || post["title"] != "Brew day" {
		t.Fatalf("post = %v", post)
	}
	if post["user_prompt"] != nil {
		t.Fatalf("user_prompt = %v, want null", post["user_prompt"])
	}
	meta := post["metadata"].(map[string]any)
	if _, ok := meta["drop"]; ok || meta["keep"] != float64(1) || meta["added"] != true {
		t.Fatalf("metadata = %v", meta)
	}

	rr, body = h.do(t, httptest.NewRequest(http.MethodGet, "/api/posts-history", nil))
	if rr.Code != http.StatusOK || body["count"] != float64(1) {
		t.Fatalf("list = %d %v", rr.Code, body)
	}
}

func TestPostValidation(t *testing.T) {
	h := newHarness(t, nil, "")

	rr, _ := h.do(t, jsonRequest(http.MethodPost, "/api/posts-history", `{"title":"only title"}`))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("missing content = %d", rr.Code)
	}
	rr, _ = h.do(t, jsonRequest(http.MethodPut, "/api/posts-history", `{"status":"published"}`))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("missing id = %d", rr.Code)
	}
	rr, _ = h.do(t, jsonRequest(http.MethodPut, "/api/posts-history", `{"id":"nope","status":"published"}`))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("unknown id = %d", rr.Code)
	}
}

func TestUploadRejectsOversizedImage(t *testing.T) {
	h := newHarness(t, nil, "")

	cases := []struct {
		name    string
		size    int
		chunked bool
	}{
		{name: "body over the request cap", size: 8 << 20},
		{name: "file over the image cap", size: core.MaxImageSize + 512<<10},
		{name: "chunked body over the request cap", size: 8 << 20, chunked: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := multipartRequest(t, "/api/upload-image", "file", "big.png", "image/png", make([]byte, tc.size), nil)
			if tc.chunked {
				req.Body = io.NopCloser(struct{ io.Reader }{req.Body})
				req.ContentLength = -1
			}
			rr, body := h.do(t, req)
			if rr.Code != http.StatusBadRequest {
				t.Fatalf("status = %d %v", rr.Code, body)
			}
			if !tc.chunked && body["error"] != core.ImageTooLargeMessage {
				t.Fatalf("error = %v", body["error"])
			}
		})
	}
}

func TestVoiceChatRejectsOversizedAudio(t *testing.T) {
	h := newHarness(t, nil, "")
	req := multipartRequest(t, "/api/voice-chat", "audio", "clip.webm", "audio/webm", []byte("webm"), nil)
	req.ContentLength = maxAudioSize + formOverhead + 1
	rr, body := h.do(t, req)
	if rr.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("status = %d %v", rr.Code, body)
	}
}

func TestUploadAttachesToPost(t *testing.T) {
	h := newHarness(t, nil, "")
	post, err := h.store.CreatePost(context.Background(), &store.Post{Title: "t", Content: "c"})
	if err != nil {
		t.Fatal(err)
	}

	rr, body := h.do(t, multipartRequest(t, "/api/upload-image", "file", "my photo.png", "image/png",
		[]byte("\x89PNG"), map[string]string{"postId": post.ID}))
	if rr.Code != http.StatusOK || body["success"] != true {
		t.Fatalf("upload = %d %v", rr.Code, body)
	}
	if !strings.HasPrefix(body["filePath"].(string), "post-images/") || !strings.HasSuffix(body["fileName"].(string), "_my_photo.png") {
		t.Fatalf("paths = %v %v", body["filePath"], body["fileName"])
	}

	got, err := h.store.GetPost(context.Background(), post.ID)
	if err != nil {
		t.Fatal(err)
	}
	var meta map[string]any
	if err := json.Unmarshal(got.Metadata, &meta); err != nil {
		t.Fatal(err)
	}
	if meta["image_url"] != body["imageUrl"] {
		t.Fatalf("metadata = %v", meta)
	}
}

func TestVoiceChatRequiresAudio(t *testing.T) {
	h := newHarness(t, nil, "")
	rr, body := h.do(t, multipartRequest(t, "/api/voice-chat", "audio", "", "", nil, map[string]string{"x": "y"}))
	if rr.Code != http.StatusBadRequest || body["error"] != "No audio file provided" {
		t.Fatalf("got %d %v", rr.Code, body)
	}
}

func TestVoiceChatReturnsAudio(t *testing.T) {
	h := newHarness(t, nil, "")
	rr, _ := h.do(t, multipartRequest(t, "/api/voice-chat", "audio", "clip.webm", "audio/webm", []byte("webm"), nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d %s", rr.Code, rr.Body.String())
	}
	if rr.Header().Get("Content-Type") != "audio/mpeg" || rr.Body.String() != "mp3-bytes" {
		t.Fatalf("audio response = %q %q", rr.Header().Get("Content-Type"), rr.Body.String())
	}

	voice, err := h.store.ListVoiceInteractions(context.Background(), 10)
	if err != nil || len(voice) != 1 {
		t.Fatalf("voice interactions = %d %v", len(voice), err)
	}
}

func TestConversationalAgentConnect(t *testing.T) {
	h := newHarness(t, nil, "")

	rr, body := h.do(t, jsonRequest(http.MethodPost, "/api/voice-conversational-agent", `{"agentId":"known","action":"connect"}`))
	if rr.Code != http.StatusOK || body["agentName"] != "Forge Agent" || body["status"] != "connected" {
		t.Fatalf("connect = %d %v", rr.Code, body)
	}

	rr, body = h.do(t, jsonRequest(http.MethodPost, "/api/voice-conversational-agent", `{"agentId":"missing","action":"connect"}`))
	if rr.Code != http.StatusNotFound || body["agentId"] != "missing" {
		t.Fatalf("missing agent = %d %v", rr.Code, body)
	}
	if !strings.Contains(body["error"].(string), "agent ID 'missing'") {
		t.Fatalf("error = %v", body["error"])
	}

	rr, _ = h.do(t, jsonRequest(http.MethodPost, "/api/voice-conversational-agent", `{"agentId":"known","action":"disconnect"}`))
	if rr.Code != http.StatusOK {
		t.Fatalf("disconnect = %d", rr.Code)
	}
	rr, _ = h.do(t, jsonRequest(http.MethodPost, "/api/voice-conversational-agent", `{"agentId":"known","action":"talk"}`))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("unknown action = %d", rr.Code)
	}
}

func TestFunctionCallingShape(t *testing.T) {
	h := newHarness(t, nil, "")
	h.gen.completion = llm.Completion{ToolCalls: []llm.ToolCall{{ID: "call_1", Name: core.CreatePostToolName, Arguments: `{"title":"t"}`}}}

	rr, body := h.do(t, jsonRequest(http.MethodPost, "/api/test-function-calling", `{}`))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d %v", rr.Code, body)
	}
	calls := body["tool_calls"].([]any)
	call := calls[0].(map[string]any)
	fn := call["function"].(map[string]any)
	if call["type"] != "function" || fn["name"] != core.CreatePostToolName || fn["arguments"] != `{"title":"t"}` {
		t.Fatalf("tool call = %v", call)
	}
}

func TestAuthMiddleware(t *testing.T) {
	h := newHarness(t, nil, "s3cret")

	rr, _ := h.do(t, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("health must stay public, got %d", rr.Code)
	}

	rr, _ = h.do(t, httptest.NewRequest(http.MethodGet, "/api/chat-history", nil))
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("no token = %d", rr.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/chat-history", nil)
	req.Header.Set("Authorization", "Bearer garbage")
	rr, _ = h.do(t, req)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("bad token = %d", rr.Code)
	}

	token, err := auth.NewIssuer("s3cret").Generate("studio")
	if err != nil {
		t.Fatal(err)
	}
	req = httptest.NewRequest(http.MethodGet, "/api/chat-history", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rr, _ = h.do(t, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("valid token = %d", rr.Code)
	}

	rr, _ = h.do(t, httptest.NewRequest(http.MethodGet, "/api/chat-history?token="+token, nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("query token = %d", rr.Code)
	}
}

func TestVoiceHistoryRoundTrip(t *testing.T) {
	h := newHarness(t, nil, "")

	rr, body := h.do(t, jsonRequest(http.MethodPost, "/api/voice-history",
		`{"user_audio_transcript":"post about tea","ai_response":"Saved one idea","duration_ms":1200}`))
	if rr.Code != http.StatusOK || body["id"] == "" {
		t.Fatalf("create = %d %v", rr.Code, body)
	}

	rr, body = h.do(t, jsonRequest(http.MethodPost, "/api/voice-history", `{"ai_response":"only half"}`))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("missing transcript = %d %v", rr.Code, body)
	}

	rr, body = h.do(t, httptest.NewRequest(http.MethodGet, "/api/voice-history", nil))
	if rr.Code != http.StatusOK || body["count"] != float64(1) {
		t.Fatalf("list = %d %v", rr.Code, body)
	}
	row := body["voice"].([]any)[0].(map[string]any)
	if row["interaction_type"] != core.DefaultInteractionType || row["duration_ms"] != float64(1200) {
		t.Fatalf("row = %v", row)
	}
}
