// Package fwserve serves firmware images to devices and offers them over the
// cloud session.
package fwserve

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/gin-gonic/gin"

	"github.com/NamanBalaji/otad/internal/cloud"
	"github.com/NamanBalaji/otad/internal/errors"
	"github.com/NamanBalaji/otad/internal/logger"
)

var ErrInvalidImageName = errors.New("invalid image name")

// OfferPublisher delivers an offer to one device.
type OfferPublisher interface {
	PublishOffer(device string, m cloud.OfferMessage) error
}

// Image describes one servable firmware file.
type Image struct {
	Name  string `json:"name"`
	Size  int64  `json:"size"`
	Human string `json:"human_size"`
	MD5   string `json:"md5"`
}

// OfferRequest asks for an image to be offered to a device.
type OfferRequest struct {
	Image   string `json:"image" binding:"required"`
	Version string `json:"version" binding:"required"`
	Desc    string `json:"desc"`
}

// Server is the firmware distribution endpoint.
type Server struct {
	dir       string
	baseURL   string
	publisher OfferPublisher
}

// New serves images from dir. baseURL is the plain-http origin devices use to
// reach this server, e.g. "http://10.0.0.2:8080". publisher may be nil, in
// which case offers are refused.
func New(dir, baseURL string, publisher OfferPublisher) *Server {
	return &Server{dir: dir, baseURL: strings.TrimSuffix(baseURL, "/"), publisher: publisher}
}

// Router builds the gin engine.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), accessLog)

	r.GET("/firmware", s.list)
	r.GET("/firmware/:name", s.download)
	r.HEAD("/firmware/:name", s.download)
	r.POST("/devices/:device/offers", s.offer)

	return r
}

func accessLog(c *gin.Context) {
	c.Next()
	logger.Infof("%s %s %d %s", c.Request.Method, c.Request.URL.Path, c.Writer.Status(), c.ClientIP())
}

func (s *Server) list(c *gin.Context) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	images := make([]Image, 0, len(entries))

	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".bin") {
			continue
		}

		img, err := s.describe(e.Name())
		if err != nil {
			logger.Warnf("Skipping %s: %v", e.Name(), err)
			continue
		}

		images = append(images, img)
	}

	sort.Slice(images, func(i, j int) bool { return images[i].Name < images[j].Name })

	c.JSON(http.StatusOK, images)
}

// download always answers with a Content-Length; devices reject bodies
// without one.
func (s *Server) download(c *gin.Context) {
	path, err := s.path(c.Param("name"))
	if err != nil {
		c.String(http.StatusBadRequest, err.Error())
		return
	}

	f, err := os.Open(path)
	if err != nil {
		c.String(http.StatusNotFound, "not found")
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		c.String(http.StatusInternalServerError, err.Error())
		return
	}

	c.DataFromReader(http.StatusOK, info.Size(), "application/octet-stream", f, nil)
}

func (s *Server) offer(c *gin.Context) {
	if s.publisher == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "no cloud session configured"})
		return
	}

	var req OfferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	img, err := s.describe(req.Image)
	if err != nil {
		status := http.StatusNotFound
		if errors.Is(err, ErrInvalidImageName) {
			status = http.StatusBadRequest
		}

		c.JSON(status, gin.H{"error": err.Error()})

		return
	}

	msg := cloud.OfferMessage{
		TargetVersion: req.Version,
		MD5:           img.MD5,
		URL:           s.baseURL + "/firmware/" + img.Name,
		PkgSize:       img.Size,
		Desc:          req.Desc,
	}

	if err := s.publisher.PublishOffer(c.Param("device"), msg); err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusAccepted, msg)
}

func (s *Server) path(name string) (string, error) {
	if name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		return "", fmt.Errorf("%w: %q", ErrInvalidImageName, name)
	}

	return filepath.Join(s.dir, name), nil
}

func (s *Server) describe(name string) (Image, error) {
	path, err := s.path(name)
	if err != nil {
		return Image{}, err
	}

	f, err := os.Open(path)
	if err != nil {
		return Image{}, err
	}
	defer f.Close()

	h := md5.New()

	n, err := io.Copy(h, f)
	if err != nil {
		return Image{}, fmt.Errorf("failed to hash %s: %w", name, err)
	}

	return Image{
		Name:  name,
		Size:  n,
		Human: humanize.IBytes(uint64(n)),
		MD5:   hex.EncodeToString(h.Sum(nil)),
	}, nil
}
