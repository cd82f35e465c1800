package httpapi

import (
	"bytes"
	"encoding/base64"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"faceguard/internal/attendance"
	"faceguard/internal/capture"
	"faceguard/internal/enrollment"
	"faceguard/internal/export"
	"faceguard/internal/faceclient"
)

const defaultRecentLimit = 10

// ---------- Frames ----------

type frameRequest struct {
	Data string `json:"data" binding:"required"`
}

// pushFrame accepts a still from the kiosk camera, either as a raw image body
// or as JSON {"data": "<data URL>"}.
func (s *Server) pushFrame(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxFrameBytes)

	var frame []byte
	if strings.HasPrefix(c.ContentType(), "application/json") {
		var req frameRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": `provide {"data": "<base64 data URL>"}`})
			return
		}
		data, err := faceclient.DecodeDataURL(req.Data)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		frame = data
	} else {
		data, err := io.ReadAll(c.Request.Body)
		if err != nil {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "frame too large"})
			return
		}
		frame = data
	}
	if len(frame) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "empty frame"})
		return
	}

	if err := s.frames.Push(frame, s.now()); err != nil {
		if errors.Is(err, capture.ErrNoFrame) {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "camera released"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	s.metrics.FramesReceived.Inc()
	c.JSON(http.StatusAccepted, gin.H{"accepted": true})
}

// ---------- Identities ----------

type identityResponse struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Photo      string    `json:"photo"`
	EnrolledAt time.Time `json:"enrolled_at"`
}

func toIdentityResponse(id enrollment.Identity) identityResponse {
	return identityResponse{
		ID:         id.ID,
		Name:       id.Name,
		Photo:      dataURL(id.ReferenceImage),
		EnrolledAt: id.EnrolledAt,
	}
}

func dataURL(img []byte) string {
	if len(img) == 0 {
		return ""
	}
	return "data:" + http.DetectContentType(img) + ";base64," + base64.StdEncoding.EncodeToString(img)
}

func (s *Server) listIdentities(c *gin.Context) {
	ids := s.identities.List()
	out := make([]identityResponse, 0, len(ids))
	for _, id := range ids {
		out = append(out, toIdentityResponse(id))
	}
	c.JSON(http.StatusOK, gin.H{"identities": out})
}

type enrollRequest struct {
	Name  string `json:"name" form:"name"`
	Photo string `json:"photo"`
}

// enroll registers a person. Expects multipart fields name and photo (file),
// or JSON {"name": "...", "photo": "<data URL>"}.
func (s *Server) enroll(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxFrameBytes)

	var (
		req   enrollRequest
		photo []byte
	)
	if strings.HasPrefix(c.ContentType(), "multipart/form-data") {
		if err := c.ShouldBind(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		file, _, err := c.Request.FormFile("photo")
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "photo file is required"})
			return
		}
		defer file.Close()
		photo, err = io.ReadAll(file)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read photo"})
			return
		}
	} else {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if req.Photo != "" {
			data, err := faceclient.DecodeDataURL(req.Photo)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			photo = data
		}
	}

	id, err := s.identities.Add(req.Name, photo, s.now())
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	s.logger.Info("identity enrolled", "identity_id", id.ID, "name", id.Name)
	c.JSON(http.StatusCreated, toIdentityResponse(id))
}

func (s *Server) removeIdentity(c *gin.Context) {
	id := c.Param("id")
	if err := s.identities.Remove(id); err != nil {
		if errors.Is(err, enrollment.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	s.logger.Info("identity removed", "identity_id", id)
	c.Status(http.StatusNoContent)
}

// ---------- Attendance ----------

func (s *Server) listAttendance(c *gin.Context) {
	limit := defaultRecentLimit
	if v := c.Query("limit"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a non-negative integer"})
			return
		}
		limit = parsed
	}
	c.JSON(http.StatusOK, gin.H{
		"records": s.ledger.ListRecent(limit),
		"total":   s.ledger.Len(),
	})
}

type manualRecordRequest struct {
	Name      string `json:"name" binding:"required"`
	Timestamp string `json:"timestamp"`
}

// recordAttendance is the manual entry path. It goes through the same dedup
// window as recognizer detections.
func (s *Server) recordAttendance(c *gin.Context) {
	var req manualRecordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": enrollment.ErrNameRequired.Error()})
		return
	}

	now := s.now()
	if req.Timestamp != "" {
		ts, err := attendance.ParseTimestamp(req.Timestamp)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		now = ts
	}

	outcome, err := s.ledger.Record(name, now)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	status := http.StatusOK
	if outcome == attendance.Recorded {
		status = http.StatusCreated
	}
	c.JSON(status, gin.H{"outcome": outcome.String()})
}

func (s *Server) clearAttendance(c *gin.Context) {
	if c.Query("confirm") != "true" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "pass confirm=true to clear all records"})
		return
	}
	s.ledger.Clear()
	s.logger.Warn("attendance ledger cleared")
	c.Status(http.StatusNoContent)
}

func (s *Server) exportAttendance(c *gin.Context) {
	records := s.ledger.ListAll()
	if len(records) == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "no attendance data to export"})
		return
	}
	var buf bytes.Buffer
	if err := export.WriteXLSX(&buf, records, s.loc); err != nil {
		s.logger.Error("export failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "export failed"})
		return
	}
	c.Header("Content-Disposition", `attachment; filename="`+export.Filename(s.now().In(s.loc))+`"`)
	c.Data(http.StatusOK, export.ContentType, buf.Bytes())
}

// ---------- Dashboard ----------

func (s *Server) stats(c *gin.Context) {
	c.JSON(http.StatusOK, attendance.Summarize(s.ledger.ListAll(), s.identities.Len(), s.now().In(s.loc)))
}

func (s *Server) scannerStatus(c *gin.Context) {
	body := gin.H{"camera": s.frames.Stats()}
	if s.scanner != nil {
		body["scheduler"] = s.scanner.Status()
	}
	c.JSON(http.StatusOK, body)
}
