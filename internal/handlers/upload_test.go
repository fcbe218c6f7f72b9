package handlers_test

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/caretalk/caretalk/internal/handlers"
	"github.com/caretalk/caretalk/internal/hub"
	"github.com/caretalk/caretalk/internal/models"
)

func (ts *testServer) uploadFile(t *testing.T, roomID, sub, role string) (*http.Response, handlers.UploadResponse) {
	t.Helper()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", "scan.png")
	require.NoError(t, err)
	_, err = part.Write([]byte("fake png bytes"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req, err := http.NewRequest("POST", ts.srv.URL+"/rooms/"+roomID+"/uploads?kind=image", &buf)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+mintToken(t, sub, role))
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })

	var body handlers.UploadResponse
	if resp.StatusCode == http.StatusCreated {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	}
	return resp, body
}

func TestUploadThenMessage(t *testing.T) {
	ts := newTestServer(t)
	roomID := ts.createRoom(t, "patient-1", "clinician-1")

	resp, uploaded := ts.uploadFile(t, roomID, "patient-1", models.RolePatient)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	require.NotEmpty(t, uploaded.Ref)

	patient := ts.dial(t, "patient-1", models.RolePatient)
	clinician := ts.dial(t, "clinician-1", models.RoleClinician)
	joinRoom(t, patient, roomID)
	joinRoom(t, clinician, roomID)

	// The completed reference passes the broadcast gate.
	sendEvent(t, patient, messageEvent(roomID, "here is the scan", uploaded.Ref))

	ev := readEvent(t, clinician)
	require.Equal(t, hub.KindMessage, ev.Kind)

	var payload hub.MessagePayload
	require.NoError(t, json.Unmarshal(ev.Payload, &payload))
	assert.Equal(t, []string{uploaded.Ref}, payload.Attachments)
}

func TestUploadRejectsOutsider(t *testing.T) {
	ts := newTestServer(t)
	roomID := ts.createRoom(t, "patient-1", "clinician-1")

	resp, _ := ts.uploadFile(t, roomID, "patient-2", models.RolePatient)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestUploadRequiresKind(t *testing.T) {
	ts := newTestServer(t)
	roomID := ts.createRoom(t, "patient-1", "clinician-1")

	req, err := http.NewRequest("POST", ts.srv.URL+"/rooms/"+roomID+"/uploads", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+mintToken(t, "patient-1", models.RolePatient))

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
