package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/ProtonMail/go-crypto/openpgp"
	"github.com/ProtonMail/go-crypto/openpgp/armor"
	"github.com/go-chi/chi/v5"

	"github.com/hushline/hushline/internal/auth"
	"github.com/hushline/hushline/internal/config"
	"github.com/hushline/hushline/internal/mailer"
	appmw "github.com/hushline/hushline/internal/middleware"
	"github.com/hushline/hushline/internal/model"
	"github.com/hushline/hushline/internal/pgp"
	"github.com/hushline/hushline/internal/store"
)

const testPassword = "correct-horse-battery-staple"

type fakeBlobs struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func (f *fakeBlobs) Put(_ context.Context, key string, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[key] = data
	return nil
}

func (f *fakeBlobs) Delete(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, key)
	return nil
}

func (f *fakeBlobs) URL(key string) string { return "/assets/" + key }

type fakeNotifier struct {
	users    []*model.User
	contents []string
}

func (f *fakeNotifier) MessageReceived(u *model.User, content string) error {
	f.users = append(f.users, u)
	f.contents = append(f.contents, content)
	return nil
}

type fakeMetrics struct {
	submitted int
	changes   map[model.MessageStatus]int
}

func (f *fakeMetrics) MessageSubmitted() { f.submitted++ }

func (f *fakeMetrics) StatusChanged(s model.MessageStatus) { f.changes[s]++ }

type fakeProton struct {
	key string
	err error
}

func (f *fakeProton) Lookup(context.Context, string) (string, error) { return f.key, f.err }

type plainSealer struct{}

func (plainSealer) EncryptString(s string) (string, error) { return "sealed:" + s, nil }

type testEnv struct {
	t        *testing.T
	store    *store.Store
	router   http.Handler
	blobs    *fakeBlobs
	notifier *fakeNotifier
	metrics  *fakeMetrics
	proton   *fakeProton
}

type envOptions struct {
	aliasMode           config.AliasMode
	verificationEnabled bool
	inviteCodesRequired bool
}

// testIdentity stands in for the session middleware.
func testIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Test-User")
		if id == "" {
			http.Error(w, "unauthenticated", http.StatusUnauthorized)
			return
		}
		ctx := appmw.WithUser(r.Context(), id, r.Header.Get("X-Test-Admin") == "true")
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func newTestEnv(t *testing.T, opts envOptions) *testEnv {
	t.Helper()
	db, err := store.Open(context.Background(), "sqlite", filepath.Join(t.TempDir(), "hushline.db")+"?_time_format=sqlite")
	if err != nil {
		t.Fatalf("open test database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if opts.aliasMode == "" {
		opts.aliasMode = config.AliasAlways
	}

	env := &testEnv{
		t:        t,
		store:    store.New(db, nil),
		blobs:    &fakeBlobs{objects: map[string][]byte{}},
		notifier: &fakeNotifier{},
		metrics:  &fakeMetrics{changes: map[model.MessageStatus]int{}},
		proton:   &fakeProton{},
	}

	base := NewBaseHandler(slog.New(slog.NewTextHandler(io.Discard, nil)))
	authH := NewAuthHandler(base, env.store, false, opts.inviteCodesRequired)
	brandingH := NewBrandingHandler(base, env.store, env.blobs)
	directoryH := NewDirectoryHandler(base, env.store, true)
	profileH := NewProfileHandler(base, env.store, env.notifier, env.metrics)
	inboxH := NewInboxHandler(base, env.store, env.metrics)
	settingsH := NewSettingsHandler(base, env.store, env.proton, plainSealer{}, opts.aliasMode)
	adminH := NewAdminHandler(base, env.store, opts.verificationEnabled)

	r := chi.NewRouter()
	r.Get("/", brandingH.Homepage)
	r.Get("/api/branding", brandingH.Public)
	r.Get("/api/directory", directoryH.List)
	r.Get("/api/to/{username}", profileH.Get)
	r.Post("/api/to/{username}/messages", profileH.Submit)
	r.Get("/api/reply/{slug}", profileH.Reply)
	r.With(appmw.RegistrationGate(env.store.Settings)).Post("/api/register", authH.Register)
	r.Post("/api/login", authH.Login)
	r.Post("/api/logout", authH.Logout)

	r.Group(func(r chi.Router) {
		r.Use(testIdentity)
		r.Get("/api/inbox", inboxH.List)
		r.Put("/api/messages/{id}/status", inboxH.UpdateStatus)
		r.Delete("/api/messages/{id}", inboxH.Delete)
		r.Get("/api/settings", settingsH.Get)
		r.Put("/api/settings/profile", settingsH.UpdateProfile)
		r.Put("/api/settings/status-text", settingsH.UpdateStatusText)
		r.Get("/api/settings/fields", settingsH.ListFields)
		r.Post("/api/settings/fields", settingsH.CreateField)
		r.Delete("/api/settings/fields/{id}", settingsH.DeleteField)
		r.Post("/api/settings/aliases", settingsH.CreateAlias)
		r.Put("/api/settings/pgp", settingsH.UpdatePGPKey)
		r.Post("/api/settings/pgp/proton", settingsH.ImportProtonKey)
		r.Put("/api/settings/notifications", settingsH.UpdateNotifications)
		r.Put("/api/settings/password", settingsH.ChangePassword)
		r.Post("/api/settings/delete-account", settingsH.DeleteAccount)

		r.Group(func(r chi.Router) {
			r.Use(appmw.RequireAdmin)
			r.Get("/api/admin/users", adminH.ListUsers)
			r.Post("/api/admin/users/{id}/toggle-admin", adminH.ToggleAdmin)
			r.Post("/api/admin/users/{id}/toggle-verified", adminH.ToggleVerified)
			r.Post("/api/admin/invite-codes", adminH.CreateInviteCode)
			r.Get("/api/admin/invite-codes", adminH.ListInviteCodes)
			r.Get("/api/admin/branding", brandingH.Admin)
			r.Put("/api/admin/branding/directory-text", brandingH.UpdateDirectoryText)
			r.Put("/api/admin/branding/color", brandingH.UpdateColor)
			r.Put("/api/admin/branding/name", brandingH.UpdateName)
			r.Put("/api/admin/branding/homepage", brandingH.UpdateHomepage)
			r.Post("/api/admin/branding/logo", brandingH.UploadLogo)
			r.Delete("/api/admin/branding/logo", brandingH.DeleteLogo)
			r.Delete("/api/admin/branding/homepage", brandingH.ResetHomepage)
			r.Delete("/api/admin/branding/directory-text", brandingH.ResetDirectoryText)
		})
	})
	env.router = r
	return env
}

func (e *testEnv) createUser(username string, admin bool) *model.User {
	e.t.Helper()
	hash, err := auth.Hash(testPassword)
	if err != nil {
		e.t.Fatalf("hash: %v", err)
	}
	var u *model.User
	err = e.store.InTx(context.Background(), func(tx *store.Store) error {
		var err error
		u, err = tx.Users.Create(context.Background(), username, hash, admin)
		return err
	})
	if err != nil {
		e.t.Fatalf("create user %s: %v", username, err)
	}
	return u
}

// do sends body as JSON, or raw when it is an io.Reader. as is the acting
// user and may be nil.
func (e *testEnv) do(method, path string, body any, as *model.User) *httptest.ResponseRecorder {
	e.t.Helper()
	var rdr io.Reader
	switch b := body.(type) {
	case nil:
	case io.Reader:
		rdr = b
	default:
		buf, err := json.Marshal(b)
		if err != nil {
			e.t.Fatalf("marshal body: %v", err)
		}
		rdr = bytes.NewReader(buf)
	}

	req := httptest.NewRequest(method, path, rdr)
	if _, ok := body.(io.Reader); !ok && body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if as != nil {
		req.Header.Set("X-Test-User", as.ID)
		if as.IsAdmin {
			req.Header.Set("X-Test-Admin", "true")
		}
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return out
}

func expectStatus(t *testing.T, rec *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rec.Code != want {
		t.Fatalf("status = %d, want %d; body: %s", rec.Code, want, rec.Body.String())
	}
}

func generateTestKey(t *testing.T) (publicKey, privateKey string) {
	t.Helper()
	entity, err := openpgp.NewEntity("Test User", "", "test@example.org", nil)
	if err != nil {
		t.Fatalf("generate test key: %v", err)
	}

	var pubBuf, privBuf strings.Builder
	pubWriter, _ := armor.Encode(&pubBuf, "PGP PUBLIC KEY BLOCK", nil)
	_ = entity.Serialize(pubWriter)
	pubWriter.Close()

	privWriter, _ := armor.Encode(&privBuf, "PGP PRIVATE KEY BLOCK", nil)
	_ = entity.SerializePrivate(privWriter, nil)
	privWriter.Close()

	return pubBuf.String(), privBuf.String()
}

func testPNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	img.Set(1, 1, color.RGBA{125, 37, 193, 255})
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func multipartFile(t *testing.T, field string, data []byte) (io.Reader, string) {
	t.Helper()
	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)
	part, err := w.CreateFormFile(field, "logo.png")
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	_, _ = part.Write(data)
	w.Close()
	return body, w.FormDataContentType()
}

func TestValidateValues(t *testing.T) {
	defs := []model.FieldDefinition{
		{ID: "name", Label: "Name", FieldType: model.FieldText, Required: true},
		{ID: "topic", Label: "Topic", FieldType: model.FieldChoiceSingle, Choices: []string{"Fraud", "Safety"}},
		{ID: "tags", Label: "Tags", FieldType: model.FieldChoiceMultiple, Choices: []string{"a", "b", "c"}},
	}

	tests := []struct {
		name    string
		values  map[string][]string
		wantErr string
	}{
		{"valid", map[string][]string{"name": {"Ada"}, "topic": {"Fraud"}, "tags": {"a", "c"}}, ""},
		{"missing required", map[string][]string{"topic": {"Fraud"}}, "name"},
		{"blank required", map[string][]string{"name": {"   "}}, "name"},
		{"two texts", map[string][]string{"name": {"a", "b"}}, "name"},
		{"bad choice", map[string][]string{"name": {"Ada"}, "topic": {"Other"}}, "topic"},
		{"two single choices", map[string][]string{"name": {"Ada"}, "topic": {"Fraud", "Safety"}}, "topic"},
		{"duplicate choices", map[string][]string{"name": {"Ada"}, "tags": {"a", "a"}}, "tags"},
		{"unknown field", map[string][]string{"name": {"Ada"}, "extra": {"x"}}, "extra"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			values, errs := validateValues(defs, tt.values)
			if tt.wantErr == "" {
				if errs != nil {
					t.Fatalf("unexpected errors: %v", errs)
				}
				if len(values) != 3 {
					t.Fatalf("expected 3 values, got %d", len(values))
				}
				return
			}
			if _, ok := errs[tt.wantErr]; !ok {
				t.Fatalf("expected error on %q, got %v", tt.wantErr, errs)
			}
		})
	}
}

func TestFormatMessage(t *testing.T) {
	got := formatMessage([]model.FieldValue{
		{Label: "Contact Method", Values: []string{"signal"}},
		{Label: "Tags", Values: []string{"a", "b"}},
	})
	want := "Contact Method\nsignal\n\nTags\na, b"
	if got != want {
		t.Errorf("formatMessage = %q, want %q", got, want)
	}
}

func TestSubmitWithDefaultFields(t *testing.T) {
	env := newTestEnv(t, envOptions{})
	owner := env.createUser("whistle_box", false)

	rec := env.do(http.MethodGet, "/api/to/whistle_box", nil, nil)
	expectStatus(t, rec, http.StatusOK)
	if fields := decode(t, rec)["fields"].([]any); len(fields) != 2 {
		t.Fatalf("expected the two default fields, got %d", len(fields))
	}

	rec = env.do(http.MethodPost, "/api/to/whistle_box/messages", map[string]any{
		"values": map[string][]string{"contact_method": {"signal: @ada"}},
	}, nil)
	expectStatus(t, rec, http.StatusBadRequest)

	rec = env.do(http.MethodPost, "/api/to/whistle_box/messages", map[string]any{
		"values": map[string][]string{"content": {"the books are cooked"}},
	}, nil)
	expectStatus(t, rec, http.StatusCreated)
	slug, _ := decode(t, rec)["reply_slug"].(string)
	if slug == "" {
		t.Fatal("expected a reply slug")
	}

	msgs, err := env.store.Messages.ListForUser(context.Background(), owner.ID, nil)
	if err != nil || len(msgs) != 1 {
		t.Fatalf("expected one stored message, got %d (%v)", len(msgs), err)
	}
	if msgs[0].Content != "Message\nthe books are cooked" {
		t.Errorf("unexpected stored content %q", msgs[0].Content)
	}
	if msgs[0].Status != model.StatusPending {
		t.Errorf("new messages must be pending, got %s", msgs[0].Status)
	}
	if env.metrics.submitted != 1 || len(env.notifier.users) != 1 {
		t.Errorf("expected one metric and one notification, got %d and %d", env.metrics.submitted, len(env.notifier.users))
	}
}

func TestSubmitEncryptsForKeyHolders(t *testing.T) {
	env := newTestEnv(t, envOptions{})
	owner := env.createUser("keyholder", false)
	pub, _ := generateTestKey(t)
	if err := env.store.Users.SetPGPKey(context.Background(), owner.ID, pub); err != nil {
		t.Fatalf("set key: %v", err)
	}

	rec := env.do(http.MethodPost, "/api/to/keyholder/messages", map[string]any{
		"values": map[string][]string{"content": {"secret"}},
	}, nil)
	expectStatus(t, rec, http.StatusCreated)

	msgs, _ := env.store.Messages.ListForUser(context.Background(), owner.ID, nil)
	if len(msgs) != 1 || !strings.HasPrefix(msgs[0].Content, "-----BEGIN PGP MESSAGE-----") {
		t.Fatalf("expected encrypted content, got %+v", msgs)
	}
	if strings.Contains(env.notifier.contents[0], "secret") {
		t.Error("notification content must be the encrypted message")
	}
}

func TestSubmitUnknownUsername(t *testing.T) {
	env := newTestEnv(t, envOptions{})
	rec := env.do(http.MethodPost, "/api/to/nobody/messages", map[string]any{
		"values": map[string][]string{"content": {"x"}},
	}, nil)
	expectStatus(t, rec, http.StatusNotFound)
}

func TestReplyStatusText(t *testing.T) {
	env := newTestEnv(t, envOptions{})
	owner := env.createUser("replies", false)
	rec := env.do(http.MethodPost, "/api/to/replies/messages", map[string]any{
		"values": map[string][]string{"content": {"hello"}},
	}, nil)
	expectStatus(t, rec, http.StatusCreated)
	slug := decode(t, rec)["reply_slug"].(string)

	rec = env.do(http.MethodGet, "/api/reply/"+slug, nil, nil)
	expectStatus(t, rec, http.StatusOK)
	body := decode(t, rec)
	if body["display"] != "Waiting for Response" || body["emoji"] != "⏳" {
		t.Errorf("unexpected pending reply: %v", body)
	}
	if body["text"] != string(model.StatusPending.DefaultText()) {
		t.Errorf("expected default text, got %v", body["text"])
	}

	rec = env.do(http.MethodPut, "/api/settings/status-text", map[string]string{"status": "pending", "markdown": "We are reading it."}, owner)
	expectStatus(t, rec, http.StatusOK)

	body = decode(t, env.do(http.MethodGet, "/api/reply/"+slug, nil, nil))
	if body["text"] != "We are reading it." || body["custom_text"] != true {
		t.Errorf("expected custom text, got %v", body)
	}

	rec = env.do(http.MethodPut, "/api/settings/status-text", map[string]string{"status": "pending", "markdown": ""}, owner)
	expectStatus(t, rec, http.StatusOK)
	body = decode(t, env.do(http.MethodGet, "/api/reply/"+slug, nil, nil))
	if body["custom_text"] != false {
		t.Errorf("empty text must restore the default, got %v", body)
	}

	expectStatus(t, env.do(http.MethodGet, "/api/reply/unknown", nil, nil), http.StatusNotFound)
}

func TestInboxStatusFlow(t *testing.T) {
	env := newTestEnv(t, envOptions{})
	owner := env.createUser("inbox_owner", false)
	other := env.createUser("someone_else", false)

	expectStatus(t, env.do(http.MethodPost, "/api/to/inbox_owner/messages", map[string]any{
		"values": map[string][]string{"content": {"one"}},
	}, nil), http.StatusCreated)
	msgs, _ := env.store.Messages.ListForUser(context.Background(), owner.ID, nil)
	id := msgs[0].ID

	expectStatus(t, env.do(http.MethodGet, "/api/inbox?status=bogus", nil, owner), http.StatusBadRequest)
	expectStatus(t, env.do(http.MethodPut, "/api/messages/"+id+"/status", map[string]string{"status": "bogus"}, owner), http.StatusBadRequest)
	expectStatus(t, env.do(http.MethodPut, "/api/messages/"+id+"/status", map[string]string{"status": "accepted"}, other), http.StatusNotFound)
	expectStatus(t, env.do(http.MethodPut, "/api/messages/"+id+"/status", map[string]string{"status": "accepted"}, owner), http.StatusOK)

	if env.metrics.changes[model.StatusAccepted] != 1 {
		t.Errorf("expected one accepted status change, got %d", env.metrics.changes[model.StatusAccepted])
	}

	body := decode(t, env.do(http.MethodGet, "/api/inbox?status=accepted", nil, owner))
	if got := len(body["messages"].([]any)); got != 1 {
		t.Errorf("expected 1 accepted message, got %d", got)
	}
	body = decode(t, env.do(http.MethodGet, "/api/inbox?status=pending", nil, owner))
	if got := len(body["messages"].([]any)); got != 0 {
		t.Errorf("expected 0 pending messages, got %d", got)
	}

	expectStatus(t, env.do(http.MethodDelete, "/api/messages/"+id, nil, other), http.StatusNotFound)
	expectStatus(t, env.do(http.MethodDelete, "/api/messages/"+id, nil, owner), http.StatusOK)
}

func TestCustomFields(t *testing.T) {
	env := newTestEnv(t, envOptions{})
	owner := env.createUser("fields_owner", false)

	expectStatus(t, env.do(http.MethodPost, "/api/settings/fields", map[string]any{
		"label": "Topic", "field_type": "choice_single",
	}, owner), http.StatusBadRequest)
	expectStatus(t, env.do(http.MethodPost, "/api/settings/fields", map[string]any{
		"label": "Topic", "field_type": "text", "choices": []string{"a"},
	}, owner), http.StatusBadRequest)
	expectStatus(t, env.do(http.MethodPost, "/api/settings/fields", map[string]any{
		"label": "Topic", "field_type": "dropdown",
	}, owner), http.StatusBadRequest)

	rec := env.do(http.MethodPost, "/api/settings/fields", map[string]any{
		"label": "Topic", "field_type": "choice_single", "required": true, "choices": []string{"Fraud", "Safety"},
	}, owner)
	expectStatus(t, rec, http.StatusCreated)
	fieldID := decode(t, rec)["field"].(map[string]any)["id"].(string)

	expectStatus(t, env.do(http.MethodPost, "/api/to/fields_owner/messages", map[string]any{
		"values": map[string][]string{fieldID: {"Other"}},
	}, nil), http.StatusBadRequest)
	expectStatus(t, env.do(http.MethodPost, "/api/to/fields_owner/messages", map[string]any{
		"values": map[string][]string{fieldID: {"Safety"}},
	}, nil), http.StatusCreated)

	body := decode(t, env.do(http.MethodGet, "/api/settings/fields", nil, owner))
	if got := len(body["fields"].([]any)); got != 1 {
		t.Fatalf("expected 1 field, got %d", got)
	}

	stranger := env.createUser("stranger", false)
	expectStatus(t, env.do(http.MethodDelete, "/api/settings/fields/"+fieldID, nil, stranger), http.StatusNotFound)
	expectStatus(t, env.do(http.MethodDelete, "/api/settings/fields/"+fieldID, nil, owner), http.StatusOK)
}

func TestCustomFieldsRejectBlankText(t *testing.T) {
	env := newTestEnv(t, envOptions{})
	owner := env.createUser("fields_owner", false)

	tests := []struct {
		name  string
		body  map[string]any
		field string
	}{
		{"blank label", map[string]any{"label": "   ", "field_type": "text"}, "label"},
		{"blank choice", map[string]any{"label": "Topic", "field_type": "choice_single", "choices": []string{"Fraud", "  "}}, "choices"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(http.MethodPost, "/api/settings/fields", tt.body, owner)
			expectStatus(t, rec, http.StatusBadRequest)
			errs, _ := decode(t, rec)["error"].(map[string]any)
			if _, ok := errs[tt.field]; !ok {
				t.Errorf("expected an error for %s, got %s", tt.field, rec.Body.String())
			}
		})
	}

	name, err := env.store.Users.GetUsername(context.Background(), owner.PrimaryUsername)
	if err != nil {
		t.Fatalf("get username: %v", err)
	}
	fields, err := env.store.Fields.ListForUsername(context.Background(), name.ID, false)
	if err != nil {
		t.Fatalf("list fields: %v", err)
	}
	for _, f := range fields {
		if strings.TrimSpace(f.Label) == "" {
			t.Errorf("stored a field with a blank label: %+v", f)
		}
	}
}

func TestAliasModes(t *testing.T) {
	tests := []struct {
		mode    config.AliasMode
		premium bool
		want    int
	}{
		{config.AliasAlways, false, http.StatusCreated},
		{config.AliasNever, true, http.StatusUnauthorized},
		{config.AliasPremium, false, http.StatusUnauthorized},
		{config.AliasPremium, true, http.StatusCreated},
	}
	for _, tt := range tests {
		t.Run(string(tt.mode), func(t *testing.T) {
			env := newTestEnv(t, envOptions{aliasMode: tt.mode})
			u := env.createUser("alias_owner", false)
			if tt.premium {
				if _, err := env.store.DB().Exec(`UPDATE users SET is_premium = TRUE WHERE id = ?`, u.ID); err != nil {
					t.Fatalf("mark premium: %v", err)
				}
			}
			rec := env.do(http.MethodPost, "/api/settings/aliases", map[string]string{"username": "second_name"}, u)
			expectStatus(t, rec, tt.want)
		})
	}
}

func TestAliasDuplicate(t *testing.T) {
	env := newTestEnv(t, envOptions{})
	u := env.createUser("alias_owner", false)
	env.createUser("taken_name", false)
	expectStatus(t, env.do(http.MethodPost, "/api/settings/aliases", map[string]string{"username": "taken_name"}, u), http.StatusBadRequest)
	expectStatus(t, env.do(http.MethodPost, "/api/settings/aliases", map[string]string{"username": "bad name!"}, u), http.StatusBadRequest)
}

func TestPGPKeySettings(t *testing.T) {
	env := newTestEnv(t, envOptions{})
	u := env.createUser("pgp_owner", false)
	pub, _ := generateTestKey(t)

	expectStatus(t, env.do(http.MethodPut, "/api/settings/pgp", map[string]string{"pgp_key": "not a key"}, u), http.StatusBadRequest)
	expectStatus(t, env.do(http.MethodPut, "/api/settings/pgp", map[string]string{"pgp_key": pub}, u), http.StatusOK)

	got, _ := env.store.Users.GetByID(context.Background(), u.ID)
	if !pgp.IsValidKey(got.PGPKey) {
		t.Error("expected the stored key to be valid")
	}
}

func TestRemovingPGPKeyStopsContentInNotifications(t *testing.T) {
	env := newTestEnv(t, envOptions{})
	u := env.createUser("key_owner", false)
	pub, _ := generateTestKey(t)

	expectStatus(t, env.do(http.MethodPut, "/api/settings/pgp", map[string]string{"pgp_key": pub}, u), http.StatusOK)
	expectStatus(t, env.do(http.MethodPut, "/api/settings/notifications", map[string]any{
		"email": "me@example.org", "enable_email_notifications": true, "email_include_message_content": true,
	}, u), http.StatusOK)

	rec := env.do(http.MethodPut, "/api/settings/pgp", map[string]string{"pgp_key": ""}, u)
	expectStatus(t, rec, http.StatusOK)
	if decode(t, rec)["message"] != "👍 PGP key removed." {
		t.Errorf("unexpected message: %s", rec.Body.String())
	}

	got, _ := env.store.Users.GetByID(context.Background(), u.ID)
	if got.PGPKey != "" || got.EmailIncludeMessageContent {
		t.Fatalf("expected key and content opt-in cleared, got key=%q include=%v", got.PGPKey, got.EmailIncludeMessageContent)
	}

	expectStatus(t, env.do(http.MethodPost, "/api/to/key_owner/messages", map[string]any{
		"values": map[string][]string{"content": {"TOPSECRET"}},
	}, nil), http.StatusCreated)
	if len(env.notifier.users) != 1 {
		t.Fatalf("expected one notification, got %d", len(env.notifier.users))
	}
	body := mailer.NotificationBody(env.notifier.users[0], env.notifier.contents[0])
	if strings.Contains(body, "TOPSECRET") {
		t.Errorf("plaintext message mailed after key removal: %q", body)
	}
}

func TestImportProtonKey(t *testing.T) {
	pub, _ := generateTestKey(t)
	tests := []struct {
		name    string
		email   string
		proton  fakeProton
		want    int
		message string
	}{
		{"invalid email", "not-an-email", fakeProton{}, http.StatusBadRequest, "⛔️ Invalid email address."},
		{"not proton", "a@example.org", fakeProton{err: pgp.ErrNotProtonAddress}, http.StatusBadRequest, "⛔️ This isn't a Proton Mail email address."},
		{"transport", "a@proton.me", fakeProton{err: io.ErrUnexpectedEOF}, http.StatusBadGateway, "⛔️ Error fetching PGP key from Proton Mail."},
		{"no key", "a@proton.me", fakeProton{key: "  "}, http.StatusBadRequest, "⛔️ No PGP key found for the email address."},
		{"ok", "a@proton.me", fakeProton{key: pub}, http.StatusOK, "👍 PGP key updated successfully."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, envOptions{})
			*env.proton = tt.proton
			u := env.createUser("proton_user", false)

			rec := env.do(http.MethodPost, "/api/settings/pgp/proton", map[string]string{"email": tt.email}, u)
			expectStatus(t, rec, tt.want)
			body := decode(t, rec)
			got, _ := body["message"].(string)
			if got == "" {
				got, _ = body["error"].(string)
			}
			if got != tt.message {
				t.Errorf("message = %q, want %q", got, tt.message)
			}
		})
	}
}

func TestUpdateNotifications(t *testing.T) {
	env := newTestEnv(t, envOptions{})
	u := env.createUser("notify_me", false)

	expectStatus(t, env.do(http.MethodPut, "/api/settings/notifications", map[string]any{
		"enable_email_notifications": true,
	}, u), http.StatusBadRequest)
	expectStatus(t, env.do(http.MethodPut, "/api/settings/notifications", map[string]any{
		"email": "me@example.org", "enable_email_notifications": true, "email_include_message_content": true,
	}, u), http.StatusBadRequest)

	rec := env.do(http.MethodPut, "/api/settings/notifications", map[string]any{
		"email":                      "me@example.org",
		"enable_email_notifications": true,
		"smtp_server":                "smtp.example.org",
		"smtp_port":                  465,
		"smtp_username":              "me",
		"smtp_password":              "hunter2",
		"smtp_sender":                "me@example.org",
		"smtp_encryption":            "SSL",
	}, u)
	expectStatus(t, rec, http.StatusOK)

	got, _ := env.store.Users.GetByID(context.Background(), u.ID)
	if got.SMTPPassword != "sealed:hunter2" || got.SMTPEncryption != model.SMTPEncryptionSSL || !got.HasCustomSMTP() {
		t.Errorf("unexpected stored settings: %+v", got)
	}

	rec = env.do(http.MethodPut, "/api/settings/notifications", map[string]any{
		"email": "me@example.org", "enable_email_notifications": true,
		"smtp_server": "smtp.example.org", "smtp_port": 465,
	}, u)
	expectStatus(t, rec, http.StatusOK)
	got, _ = env.store.Users.GetByID(context.Background(), u.ID)
	if got.SMTPPassword != "sealed:hunter2" {
		t.Error("a blank password must keep the stored one")
	}
}

func TestDeleteAccount(t *testing.T) {
	env := newTestEnv(t, envOptions{})
	admin := env.createUser("only_admin", true)
	user := env.createUser("leaving", false)

	expectStatus(t, env.do(http.MethodPost, "/api/settings/delete-account", nil, admin), http.StatusBadRequest)

	rec := env.do(http.MethodPost, "/api/settings/delete-account", nil, user)
	expectStatus(t, rec, http.StatusFound)
	if rec.Header().Get("Location") != "/" {
		t.Errorf("Location = %q, want /", rec.Header().Get("Location"))
	}
	if _, err := env.store.Users.GetByID(context.Background(), user.ID); err == nil {
		t.Error("expected the user to be gone")
	}
}

func TestAdminToggles(t *testing.T) {
	env := newTestEnv(t, envOptions{})
	admin := env.createUser("first_admin", true)
	user := env.createUser("regular", false)

	expectStatus(t, env.do(http.MethodGet, "/api/admin/users", nil, user), http.StatusForbidden)
	expectStatus(t, env.do(http.MethodPost, "/api/admin/users/"+admin.ID+"/toggle-admin", nil, admin), http.StatusBadRequest)
	expectStatus(t, env.do(http.MethodPost, "/api/admin/users/"+user.ID+"/toggle-verified", nil, admin), http.StatusUnauthorized)

	expectStatus(t, env.do(http.MethodPost, "/api/admin/users/"+user.ID+"/toggle-admin", nil, admin), http.StatusOK)
	expectStatus(t, env.do(http.MethodPost, "/api/admin/users/"+admin.ID+"/toggle-admin", nil, admin), http.StatusOK)
	expectStatus(t, env.do(http.MethodPost, "/api/admin/users/missing/toggle-admin", nil, admin), http.StatusNotFound)

	body := decode(t, env.do(http.MethodGet, "/api/admin/users", nil, admin))
	if got := len(body["users"].([]any)); got != 2 {
		t.Errorf("expected 2 users, got %d", got)
	}
}

func TestToggleVerifiedEnabled(t *testing.T) {
	env := newTestEnv(t, envOptions{verificationEnabled: true})
	admin := env.createUser("first_admin", true)
	user := env.createUser("to_verify", false)

	rec := env.do(http.MethodPost, "/api/admin/users/"+user.ID+"/toggle-verified", nil, admin)
	expectStatus(t, rec, http.StatusOK)
	if decode(t, rec)["is_verified"] != true {
		t.Error("expected the user to be verified")
	}

	body := decode(t, env.do(http.MethodGet, "/api/directory", nil, nil))
	if body["verified_tab_enabled"] != true {
		t.Error("expected the verified tab flag")
	}
}

func TestBrandingUpdates(t *testing.T) {
	env := newTestEnv(t, envOptions{})
	admin := env.createUser("brand_admin", true)

	expectStatus(t, env.do(http.MethodPut, "/api/admin/branding/color", map[string]string{"primary_color": "purple"}, admin), http.StatusBadRequest)
	expectStatus(t, env.do(http.MethodPut, "/api/admin/branding/color", map[string]string{"primary_color": "#123abc"}, admin), http.StatusOK)
	expectStatus(t, env.do(http.MethodPut, "/api/admin/branding/name", map[string]string{"name": ""}, admin), http.StatusBadRequest)

	rec := env.do(http.MethodPut, "/api/admin/branding/name", map[string]string{"name": "Acme Tips"}, admin)
	expectStatus(t, rec, http.StatusOK)
	if decode(t, rec)["message"] != "👍 Brand app name updated successfully." {
		t.Errorf("unexpected message: %s", rec.Body.String())
	}

	body := decode(t, env.do(http.MethodGet, "/api/branding", nil, nil))
	b := body["branding"].(map[string]any)
	if b["name"] != "Acme Tips" || b["primary_color"] != "#123abc" {
		t.Errorf("unexpected branding: %v", b)
	}
}

func TestDirectoryTextResetOnEmpty(t *testing.T) {
	env := newTestEnv(t, envOptions{})
	admin := env.createUser("brand_admin", true)

	rec := env.do(http.MethodPut, "/api/admin/branding/directory-text", map[string]string{"text": "Hello sources"}, admin)
	expectStatus(t, rec, http.StatusOK)
	body := decode(t, env.do(http.MethodGet, "/api/directory", nil, nil))
	if body["intro_text"] != "Hello sources" {
		t.Fatalf("intro_text = %v", body["intro_text"])
	}

	rec = env.do(http.MethodPut, "/api/admin/branding/directory-text", map[string]string{"text": ""}, admin)
	expectStatus(t, rec, http.StatusOK)
	if decode(t, rec)["message"] != "👍 Directory intro text was reset to defaults" {
		t.Errorf("unexpected message: %s", rec.Body.String())
	}
	body = decode(t, env.do(http.MethodGet, "/api/directory", nil, nil))
	if body["intro_text"] != model.SettingDirectoryIntroText.Default() {
		t.Errorf("expected the default intro text, got %v", body["intro_text"])
	}
}

func TestHomepageSetting(t *testing.T) {
	env := newTestEnv(t, envOptions{})
	admin := env.createUser("brand_admin", true)
	env.createUser("front_page", false)

	rec := env.do(http.MethodGet, "/", nil, nil)
	expectStatus(t, rec, http.StatusFound)
	if rec.Header().Get("Location") != "/directory" {
		t.Errorf("Location = %q, want /directory", rec.Header().Get("Location"))
	}

	expectStatus(t, env.do(http.MethodPut, "/api/admin/branding/homepage", map[string]string{"username": "ghost"}, admin), http.StatusBadRequest)

	rec = env.do(http.MethodPut, "/api/admin/branding/homepage", map[string]string{"username": "front_page"}, admin)
	expectStatus(t, rec, http.StatusOK)
	if decode(t, rec)["message"] != `👍 Homepage set to user "front_page"` {
		t.Errorf("unexpected message: %s", rec.Body.String())
	}

	rec = env.do(http.MethodGet, "/", nil, nil)
	if rec.Header().Get("Location") != "/to/front_page" {
		t.Errorf("Location = %q, want /to/front_page", rec.Header().Get("Location"))
	}

	rec = env.do(http.MethodDelete, "/api/admin/branding/homepage", nil, admin)
	expectStatus(t, rec, http.StatusOK)
	if decode(t, rec)["message"] != "👍 Homepage reset to default" {
		t.Errorf("unexpected message: %s", rec.Body.String())
	}
	if rec := env.do(http.MethodGet, "/", nil, nil); rec.Header().Get("Location") != "/directory" {
		t.Errorf("Location = %q after reset", rec.Header().Get("Location"))
	}
}

func TestLogoUploadAndDelete(t *testing.T) {
	env := newTestEnv(t, envOptions{})
	admin := env.createUser("brand_admin", true)

	body, ct := multipartFile(t, "logo", []byte("GIF89a not a png"))
	req := httptest.NewRequest(http.MethodPost, "/api/admin/branding/logo", body)
	req.Header.Set("Content-Type", ct)
	req.Header.Set("X-Test-User", admin.ID)
	req.Header.Set("X-Test-Admin", "true")
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	expectStatus(t, rec, http.StatusBadRequest)

	body, ct = multipartFile(t, "logo", testPNG(t))
	req = httptest.NewRequest(http.MethodPost, "/api/admin/branding/logo", body)
	req.Header.Set("Content-Type", ct)
	req.Header.Set("X-Test-User", admin.ID)
	req.Header.Set("X-Test-Admin", "true")
	rec = httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	expectStatus(t, rec, http.StatusOK)

	if _, ok := env.blobs.objects[model.BrandLogoObjectKey]; !ok {
		t.Fatal("expected the logo object to be stored")
	}
	b := decode(t, env.do(http.MethodGet, "/api/branding", nil, nil))["branding"].(map[string]any)
	if b["logo_url"] != "/assets/"+model.BrandLogoObjectKey {
		t.Errorf("logo_url = %v", b["logo_url"])
	}

	rec = env.do(http.MethodDelete, "/api/admin/branding/logo", nil, admin)
	expectStatus(t, rec, http.StatusOK)
	if decode(t, rec)["message"] != "👍 Brand logo deleted." {
		t.Errorf("unexpected message: %s", rec.Body.String())
	}
	if _, ok := env.blobs.objects[model.BrandLogoObjectKey]; ok {
		t.Error("expected the logo object to be removed")
	}
	b = decode(t, env.do(http.MethodGet, "/api/branding", nil, nil))["branding"].(map[string]any)
	if _, ok := b["logo_url"]; ok {
		t.Error("logo_url must be absent after delete")
	}
}

// duplicateSetting recreates organization_settings without its primary key
// and stores value twice under key.
func duplicateSetting(t *testing.T, env *testEnv, key model.SettingKey, value string) {
	t.Helper()
	db := env.store.DB()
	stmts := []string{
		`DROP TABLE organization_settings`,
		`CREATE TABLE organization_settings (
			setting_key   TEXT NOT NULL,
			setting_value TEXT NOT NULL,
			updated_at    TIMESTAMP NOT NULL
		)`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			t.Fatalf("alter settings table: %v", err)
		}
	}
	for range 2 {
		_, err := db.Exec(`INSERT INTO organization_settings (setting_key, setting_value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)`,
			string(key), value)
		if err != nil {
			t.Fatalf("insert duplicate: %v", err)
		}
	}
}

func TestDeleteLogoWithDuplicateRows(t *testing.T) {
	env := newTestEnv(t, envOptions{})
	admin := env.createUser("brand_admin", true)
	env.blobs.objects[model.BrandLogoObjectKey] = testPNG(t)
	duplicateSetting(t, env, model.SettingBrandLogo, `"`+model.BrandLogoObjectKey+`"`)

	rec := env.do(http.MethodDelete, "/api/admin/branding/logo", nil, admin)
	expectStatus(t, rec, http.StatusServiceUnavailable)
	if decode(t, rec)["error"] != "the server is temporarily unable to complete this change" {
		t.Errorf("unexpected error: %s", rec.Body.String())
	}
	if _, ok := env.blobs.objects[model.BrandLogoObjectKey]; !ok {
		t.Error("the logo object must stay when the reset rolls back")
	}

	var n int
	if err := env.store.DB().Get(&n, `SELECT COUNT(*) FROM organization_settings WHERE setting_key = ?`, string(model.SettingBrandLogo)); err != nil {
		t.Fatalf("count rows: %v", err)
	}
	if n != 2 {
		t.Errorf("expected rollback to keep both rows, found %d", n)
	}
}

func TestResetHomepageWithDuplicateRows(t *testing.T) {
	env := newTestEnv(t, envOptions{})
	admin := env.createUser("brand_admin", true)
	duplicateSetting(t, env, model.SettingHomepageUserName, `"front_page"`)

	rec := env.do(http.MethodDelete, "/api/admin/branding/homepage", nil, admin)
	expectStatus(t, rec, http.StatusInternalServerError)
	if decode(t, rec)["error"] != "There was an error and the setting could not reset" {
		t.Errorf("unexpected error: %s", rec.Body.String())
	}
}

func TestChangePassword(t *testing.T) {
	env := newTestEnv(t, envOptions{})
	u := env.createUser("rotating", false)
	sessionID, err := env.store.Sessions.Create(context.Background(), u.ID)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	const newPassword = "a-much-longer-new-passphrase"

	rec := env.do(http.MethodPut, "/api/settings/password", map[string]string{
		"old_password": "not-the-current-password", "new_password": newPassword,
	}, u)
	expectStatus(t, rec, http.StatusBadRequest)
	if decode(t, rec)["error"] != "⛔️ Incorrect old password." {
		t.Errorf("unexpected error: %s", rec.Body.String())
	}
	expectStatus(t, env.do(http.MethodPut, "/api/settings/password", map[string]string{
		"old_password": testPassword, "new_password": "short",
	}, u), http.StatusBadRequest)
	if _, err := env.store.Sessions.GetUserID(context.Background(), sessionID); err != nil {
		t.Fatalf("rejected changes must keep sessions: %v", err)
	}

	rec = env.do(http.MethodPut, "/api/settings/password", map[string]string{
		"old_password": testPassword, "new_password": newPassword,
	}, u)
	expectStatus(t, rec, http.StatusOK)
	if decode(t, rec)["message"] != "👍 Password successfully changed. Please log in again." {
		t.Errorf("unexpected message: %s", rec.Body.String())
	}
	if _, err := env.store.Sessions.GetUserID(context.Background(), sessionID); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected existing sessions to end, got %v", err)
	}
	cleared := false
	for _, c := range rec.Result().Cookies() {
		if c.Name == appmw.SessionCookieName && c.MaxAge < 0 {
			cleared = true
		}
	}
	if !cleared {
		t.Error("expected the session cookie to be cleared")
	}

	expectStatus(t, env.do(http.MethodPost, "/api/login", map[string]string{"username": "rotating", "password": testPassword}, nil), http.StatusUnauthorized)
	expectStatus(t, env.do(http.MethodPost, "/api/login", map[string]string{"username": "rotating", "password": newPassword}, nil), http.StatusOK)
}

func TestLoginUnknownUsername(t *testing.T) {
	env := newTestEnv(t, envOptions{})
	rec := env.do(http.MethodPost, "/api/login", map[string]string{"username": "nobody_here", "password": testPassword}, nil)
	expectStatus(t, rec, http.StatusUnauthorized)
	if decode(t, rec)["error"] != loginFailedMessage {
		t.Errorf("unexpected login error: %s", rec.Body.String())
	}
}

func TestRegisterAndLogin(t *testing.T) {
	env := newTestEnv(t, envOptions{inviteCodesRequired: true})

	expectStatus(t, env.do(http.MethodPost, "/api/register", map[string]string{
		"username": "new_user", "password": testPassword,
	}, nil), http.StatusBadRequest)
	expectStatus(t, env.do(http.MethodPost, "/api/register", map[string]string{
		"username": "new_user", "password": testPassword, "invite_code": "WRONG",
	}, nil), http.StatusBadRequest)

	code, err := env.store.InviteCodes.Create(context.Background())
	if err != nil {
		t.Fatalf("create invite code: %v", err)
	}
	expectStatus(t, env.do(http.MethodPost, "/api/register", map[string]string{
		"username": "new_user", "password": "short", "invite_code": code.Code,
	}, nil), http.StatusBadRequest)
	expectStatus(t, env.do(http.MethodPost, "/api/register", map[string]string{
		"username": "new_user", "password": testPassword, "invite_code": code.Code,
	}, nil), http.StatusCreated)

	// Codes are single use.
	expectStatus(t, env.do(http.MethodPost, "/api/register", map[string]string{
		"username": "other_user", "password": testPassword, "invite_code": code.Code,
	}, nil), http.StatusBadRequest)

	rec := env.do(http.MethodPost, "/api/login", map[string]string{"username": "new_user", "password": "wrong-password-entirely"}, nil)
	expectStatus(t, rec, http.StatusUnauthorized)
	if decode(t, rec)["error"] != "Invalid username or password" {
		t.Errorf("unexpected login error: %s", rec.Body.String())
	}

	rec = env.do(http.MethodPost, "/api/login", map[string]string{"username": "new_user", "password": testPassword}, nil)
	expectStatus(t, rec, http.StatusOK)
	var session *http.Cookie
	for _, c := range rec.Result().Cookies() {
		if c.Name == appmw.SessionCookieName {
			session = c
		}
	}
	if session == nil || session.Value == "" || !session.HttpOnly {
		t.Fatalf("expected an HttpOnly session cookie, got %+v", session)
	}
	if _, err := env.store.Sessions.GetUserID(context.Background(), session.Value); err != nil {
		t.Errorf("session not stored: %v", err)
	}
}

func TestRegisterDuplicateAndGate(t *testing.T) {
	env := newTestEnv(t, envOptions{})
	env.createUser("existing", false)

	expectStatus(t, env.do(http.MethodPost, "/api/register", map[string]string{
		"username": "existing", "password": testPassword,
	}, nil), http.StatusBadRequest)

	if err := env.store.Settings.Upsert(context.Background(), model.SettingRegistrationEnabled, false); err != nil {
		t.Fatalf("disable registration: %v", err)
	}
	rec := env.do(http.MethodPost, "/api/register", map[string]string{
		"username": "latecomer", "password": testPassword,
	}, nil)
	expectStatus(t, rec, http.StatusFound)
	if rec.Header().Get("Location") != "/" {
		t.Errorf("Location = %q, want /", rec.Header().Get("Location"))
	}
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, envOptions{})
	rec := httptest.NewRecorder()
	Health(map[string]Pinger{"database": env.store})(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	expectStatus(t, rec, http.StatusOK)

	rec = httptest.NewRecorder()
	Health(map[string]Pinger{"database": env.store, "cache": failingPinger{}})(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	expectStatus(t, rec, http.StatusServiceUnavailable)
	if decode(t, rec)["status"] != "degraded" {
		t.Errorf("expected degraded status: %s", rec.Body.String())
	}
}

type failingPinger struct{}

func (failingPinger) Ping(context.Context) error { return io.ErrClosedPipe }
