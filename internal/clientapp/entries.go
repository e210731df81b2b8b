package clientapp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/phillip-england/popsuite/internal/cascade"
)

const (
	maxUploadBytes = cascade.MaxImagesPerEntry*cascade.MaxImageBytes + 1<<20
	wsWriteTimeout = 5 * time.Second
)

type valueRequest struct {
	Value   string `json:"value"`
	Checked bool   `json:"checked"`
}

type keyRequest struct {
	Key string `json:"key"`
}

type suggestionRequest struct {
	Suggestion int `json:"suggestion"`
}

func (s *server) snapshot(w http.ResponseWriter, r *http.Request) {
	sess := s.session(w, r)
	s.writeOK(w, "", sess.ctrl.Snapshot())
}

func (s *server) addEntry(w http.ResponseWriter, r *http.Request) {
	sess := s.session(w, r)
	h, err := sess.ctrl.AddEntry()
	if err != nil {
		s.writeError(w, err, "Unable to add entry", nil)
		return
	}
	s.writeOK(w, "", map[string]int{"index": h.Index()})
}

func (s *server) removeEntry(w http.ResponseWriter, r *http.Request) {
	s.withEntry(w, r, func(sess *session, index int) error {
		return sess.ctrl.RemoveEntry(index)
	})
}

func (s *server) changeCategory(w http.ResponseWriter, r *http.Request) {
	s.withValue(w, r, func(sess *session, index int, req valueRequest) error {
		return sess.ctrl.OnCategoryChanged(index, req.Value)
	})
}

func (s *server) changeModel(w http.ResponseWriter, r *http.Request) {
	s.withValue(w, r, func(sess *session, index int, req valueRequest) error {
		return sess.ctrl.OnModelChanged(index, req.Value)
	})
}

func (s *server) selectDisplayType(w http.ResponseWriter, r *http.Request) {
	s.withValue(w, r, func(sess *session, index int, req valueRequest) error {
		return sess.ctrl.SelectDisplayType(index, req.Value)
	})
}

func (s *server) togglePopMaterial(w http.ResponseWriter, r *http.Request) {
	s.withValue(w, r, func(sess *session, index int, req valueRequest) error {
		return sess.ctrl.SetPopMaterial(index, req.Value, req.Checked)
	})
}

func (s *server) branchInput(w http.ResponseWriter, r *http.Request) {
	s.withValue(w, r, func(sess *session, index int, req valueRequest) error {
		return sess.ctrl.OnBranchInput(index, req.Value)
	})
}

func (s *server) shopCodeInput(w http.ResponseWriter, r *http.Request) {
	s.withValue(w, r, func(sess *session, index int, req valueRequest) error {
		return sess.ctrl.OnShopCodeInput(index, req.Value)
	})
}

func (s *server) branchKey(w http.ResponseWriter, r *http.Request) {
	var req keyRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, err, "Invalid request", nil)
		return
	}
	s.withEntry(w, r, func(sess *session, index int) error {
		return sess.ctrl.BranchKey(index, req.Key)
	})
}

func (s *server) selectBranch(w http.ResponseWriter, r *http.Request) {
	var req suggestionRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, err, "Invalid request", nil)
		return
	}
	s.withEntry(w, r, func(sess *session, index int) error {
		return sess.ctrl.SelectBranch(index, req.Suggestion)
	})
}

func (s *server) dismissBranch(w http.ResponseWriter, r *http.Request) {
	s.withEntry(w, r, func(sess *session, index int) error {
		return sess.ctrl.DismissSuggestions(index)
	})
}

func (s *server) attachImages(w http.ResponseWriter, r *http.Request) {
	sess := s.session(w, r)
	index, err := intParam(r, "index")
	if err != nil {
		s.writeError(w, err, "Invalid entry", nil)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		s.writeError(w, fmt.Errorf("%w: %v", errBadRequest, err), "Invalid upload", nil)
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	files, err := readUploads(r.MultipartForm.File["images"])
	if err != nil {
		s.writeError(w, err, "Invalid upload", nil)
		return
	}
	result, err := sess.ctrl.AttachImages(index, files)
	if err != nil {
		s.writeError(w, err, "Unable to attach images", nil)
		return
	}
	s.writeOK(w, result.Warning, result)
}

// readUploads loads the bytes of every file that is within the size limit.
// Larger files keep only their size so validation can reject them by name.
func readUploads(headers []*multipart.FileHeader) ([]cascade.File, error) {
	files := make([]cascade.File, 0, len(headers))
	for _, fh := range headers {
		f := cascade.File{Name: fh.Filename, ContentType: fh.Header.Get("Content-Type"), Size: fh.Size}
		if fh.Size <= cascade.MaxImageBytes {
			data, err := readFileHeader(fh)
			if err != nil {
				return nil, err
			}
			f.Data = data
		}
		files = append(files, f)
	}
	return files, nil
}

func readFileHeader(fh *multipart.FileHeader) ([]byte, error) {
	src, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer src.Close()
	return io.ReadAll(src)
}

func (s *server) removeImage(w http.ResponseWriter, r *http.Request) {
	file, err := intParam(r, "file")
	if err != nil {
		s.writeError(w, err, "Invalid image", nil)
		return
	}
	s.withEntry(w, r, func(sess *session, index int) error {
		return sess.ctrl.RemoveImage(index, file)
	})
}

func (s *server) submit(w http.ResponseWriter, r *http.Request) {
	sess := s.session(w, r)
	// The upload to the backend may outlast the server's write timeout.
	_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})
	result, err := sess.ctrl.Submit(r.Context())
	if err != nil {
		var verr *cascade.ValidationError
		if errors.As(err, &verr) {
			s.writeJSON(w, http.StatusBadRequest, envelope{Success: false, Message: verr.Message, Data: verr.Fields})
			return
		}
		fallback := result.Message
		if fallback == "" {
			fallback = cascade.SubmitFailureMessage
		}
		s.writeError(w, err, fallback, nil)
		return
	}
	s.writeOK(w, result.Message, sess.ctrl.Snapshot())
}

// updatesSocket streams the session's view updates until the page goes
// away or the session is closed.
func (s *server) updatesSocket(w http.ResponseWriter, r *http.Request) {
	sess := s.session(w, r)
	_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		s.log.WithError(err).Warn("websocket accept")
		return
	}
	defer conn.CloseNow()

	ctx := conn.CloseRead(r.Context())
	log := s.log.WithField("session", sess.id)
	for {
		select {
		case <-ctx.Done():
			return
		case <-sess.done:
			_ = conn.Close(websocket.StatusGoingAway, "session closed")
			return
		case update := <-sess.updates.ch:
			if err := writeUpdate(ctx, conn, update); err != nil {
				log.WithError(err).Debug("websocket write")
				return
			}
		}
	}
}

func writeUpdate(ctx context.Context, conn *websocket.Conn, update cascade.Update) error {
	ctx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
	defer cancel()
	return wsjson.Write(ctx, conn, update)
}

func (s *server) withEntry(w http.ResponseWriter, r *http.Request, fn func(sess *session, index int) error) {
	sess := s.session(w, r)
	index, err := intParam(r, "index")
	if err != nil {
		s.writeError(w, err, "Invalid entry", nil)
		return
	}
	if err := fn(sess, index); err != nil {
		s.writeError(w, err, "Request failed", nil)
		return
	}
	s.writeOK(w, "", nil)
}

func (s *server) withValue(w http.ResponseWriter, r *http.Request, fn func(sess *session, index int, req valueRequest) error) {
	var req valueRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, err, "Invalid request", nil)
		return
	}
	s.withEntry(w, r, func(sess *session, index int) error {
		return fn(sess, index, req)
	})
}
