package gtts

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/tradersentinel/internal/domain"
)

func TestSynthesize(t *testing.T) {
	var got synthesizeRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/text:synthesize", r.URL.Path)
		assert.Equal(t, "secret", r.URL.Query().Get("key"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		_ = json.NewEncoder(w).Encode(map[string]string{
			"audioContent": base64.StdEncoding.EncodeToString([]byte("ID3-mp3")),
		})
	}))
	defer srv.Close()

	c := NewClient("secret", WithBaseURL(srv.URL))
	audio, err := c.Synthesize(context.Background(), domain.SpeechRequest{
		Text: "BTC spread widened", Language: "en-US", Voice: "en-US-Neural2-D",
	})
	require.NoError(t, err)
	assert.Equal(t, "ID3-mp3", string(audio))

	assert.Equal(t, "BTC spread widened", got.Input.Text)
	assert.Equal(t, "en-US", got.Voice.LanguageCode)
	assert.Equal(t, "en-US-Neural2-D", got.Voice.Name)
	assert.Equal(t, "MP3", got.AudioConfig.AudioEncoding)
}

func TestSynthesizeAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = io.WriteString(w, `{"error":{"code":403,"message":"API key not valid","status":"PERMISSION_DENIED"}}`)
	}))
	defer srv.Close()

	_, err := NewClient("bad", WithBaseURL(srv.URL)).Synthesize(context.Background(), domain.SpeechRequest{Text: "hi", Language: "en-US"})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrUpstream)
	assert.Contains(t, err.Error(), "PERMISSION_DENIED: API key not valid")
}

func TestSynthesizeEmptyAudio(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{}`)
	}))
	defer srv.Close()

	_, err := NewClient("k", WithBaseURL(srv.URL)).Synthesize(context.Background(), domain.SpeechRequest{Text: "hi"})
	assert.ErrorIs(t, err, domain.ErrUpstream)
}

func TestSynthesizeBadBase64(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"audioContent":"***"}`)
	}))
	defer srv.Close()

	_, err := NewClient("k", WithBaseURL(srv.URL)).Synthesize(context.Background(), domain.SpeechRequest{Text: "hi"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode audio")
}

// serviceAccountKey builds a throwaway service-account key whose token
// endpoint is tokenURL.
func serviceAccountKey(t *testing.T, tokenURL string) []byte {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	der, err := x509.MarshalPKCS8PrivateKey(key)
	require.NoError(t, err)

	out, err := json.Marshal(map[string]string{
		"type":           "service_account",
		"project_id":     "sentinel-test",
		"private_key_id": "k1",
		"private_key":    string(pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der})),
		"client_email":   "tts@sentinel-test.iam.gserviceaccount.com",
		"token_uri":      tokenURL,
	})
	require.NoError(t, err)
	return out
}

func TestServiceAccountClientSendsBearerToken(t *testing.T) {
	var tokenCalls atomic.Int32
	tokenSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenCalls.Add(1)
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "urn:ietf:params:oauth:grant-type:jwt-bearer", r.PostForm.Get("grant_type"))
		assert.NotEmpty(t, r.PostForm.Get("assertion"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"access_token":"sa-token","token_type":"Bearer","expires_in":3600}`)
	}))
	defer tokenSrv.Close()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer sa-token", r.Header.Get("Authorization"))
		assert.Empty(t, r.URL.RawQuery, "no api key on the query string")
		_ = json.NewEncoder(w).Encode(map[string]string{
			"audioContent": base64.StdEncoding.EncodeToString([]byte("ID3")),
		})
	}))
	defer srv.Close()

	c, err := NewServiceAccountClient(context.Background(), serviceAccountKey(t, tokenSrv.URL), WithBaseURL(srv.URL))
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		audio, err := c.Synthesize(context.Background(), domain.SpeechRequest{Text: "hi", Language: "en-US"})
		require.NoError(t, err)
		assert.Equal(t, "ID3", string(audio))
	}
	assert.Equal(t, int32(1), tokenCalls.Load(), "token is reused until expiry")
}

func TestServiceAccountClientRejectsBadKey(t *testing.T) {
	_, err := NewServiceAccountClient(context.Background(), []byte(`{"type":"authorized_user"}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "gtts: service account")
}
