package server

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/oarkflow/log"

	"github.com/oarkflow/hl7/pkg/hl7"
	"github.com/oarkflow/hl7/pkg/parsers"
	"github.com/oarkflow/hl7/pkg/store"
)

type Config struct {
	Version     string
	BodyLimitKB int
	EnableCORS  bool
	AccessLog   bool
	Logger      *log.Logger
}

type Server struct {
	app    *fiber.App
	parser *parsers.HL7Parser
	store  *store.Store
	config Config
	logger *log.Logger
}

type MessageResponse struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	ControlID string    `json:"control_id"`
	Segments  int       `json:"segments"`
	Origin    string    `json:"origin,omitempty"`
	Stored    time.Time `json:"stored"`
}

type ValueResponse struct {
	Path  string `json:"path"`
	Index *int   `json:"index,omitempty"`
	Value string `json:"value"`
}

type SegmentResponse struct {
	Index int    `json:"index"`
	Type  string `json:"type"`
	Raw   string `json:"raw"`
}

func NewServer(cfg Config, parser *parsers.HL7Parser, messages *store.Store) *Server {
	if cfg.Logger == nil {
		cfg.Logger = &log.DefaultLogger
	}
	fiberCfg := fiber.Config{
		DisableStartupMessage: true,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{
				"error": err.Error(),
			})
		},
	}
	if cfg.BodyLimitKB > 0 {
		fiberCfg.BodyLimit = cfg.BodyLimitKB * 1024
	}

	server := &Server{
		app:    fiber.New(fiberCfg),
		parser: parser,
		store:  messages,
		config: cfg,
		logger: cfg.Logger,
	}
	server.setupRoutes()
	return server
}

func (s *Server) setupRoutes() {
	if s.config.EnableCORS {
		s.app.Use(cors.New())
	}
	if s.config.AccessLog {
		s.app.Use(logger.New())
	}

	s.app.Get("/health", s.healthHandler)

	api := s.app.Group("/api/messages")
	api.Post("/", s.createMessageHandler)
	api.Get("/:id", s.getMessageHandler)
	api.Delete("/:id", s.deleteMessageHandler)
	api.Get("/:id/value", s.valueHandler)
	api.Get("/:id/segments", s.segmentsHandler)
	api.Get("/:id/groups", s.groupsHandler)
	api.Get("/:id/text", s.textHandler)
	api.Get("/:id/document", s.documentHandler)
}

// App exposes the underlying fiber application.
func (s *Server) App() *fiber.App {
	return s.app
}

func (s *Server) healthHandler(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":    "healthy",
		"version":   s.config.Version,
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

func (s *Server) createMessageHandler(c *fiber.Ctx) error {
	body := string(c.Body())
	if strings.TrimSpace(body) == "" {
		return fiber.NewError(fiber.StatusBadRequest, "message body cannot be empty")
	}
	if _, ok := parsers.Select(c.Body(), s.parser); !ok && !c.QueryBool("lenient") {
		return fiber.NewError(fiber.StatusUnsupportedMediaType, "body is not an HL7 message; pass lenient=true to accept it anyway")
	}
	msg, err := s.parser.ParseString(body)
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	id, err := s.store.Put(msg, c.IP())
	if err != nil {
		return fiber.NewError(fiber.StatusServiceUnavailable, err.Error())
	}
	entry, err := s.store.Get(id)
	if err != nil {
		return fiber.NewError(fiber.StatusServiceUnavailable, err.Error())
	}
	return c.Status(fiber.StatusCreated).JSON(messageResponse(entry))
}

func (s *Server) getMessageHandler(c *fiber.Ctx) error {
	entry, err := s.entry(c)
	if err != nil {
		return err
	}
	return c.JSON(messageResponse(entry))
}

func (s *Server) deleteMessageHandler(c *fiber.Ctx) error {
	if _, err := s.entry(c); err != nil {
		return err
	}
	s.store.Delete(c.Params("id"))
	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Server) valueHandler(c *fiber.Ctx) error {
	entry, err := s.entry(c)
	if err != nil {
		return err
	}
	path := c.Query("path")
	if path == "" {
		return fiber.NewError(fiber.StatusBadRequest, "path query parameter is required")
	}
	resp := ValueResponse{Path: path}
	msg := entry.Message
	switch {
	case c.Query("index") != "":
		index, err := queryIndex(c)
		if err != nil {
			return err
		}
		resp.Index = &index
		resp.Value = msg.ValueAt(path, index)
	case c.Query("mode") == "first":
		resp.Value = msg.FirstValue(path)
	default:
		resp.Value = msg.Value(path)
	}
	return c.JSON(resp)
}

func queryIndex(c *fiber.Ctx) (int, error) {
	index, err := strconv.Atoi(c.Query("index"))
	if err != nil {
		return 0, fiber.NewError(fiber.StatusBadRequest, "index must be an integer")
	}
	return index, nil
}

func (s *Server) segmentsHandler(c *fiber.Ctx) error {
	entry, err := s.entry(c)
	if err != nil {
		return err
	}
	msg := entry.Message
	var segments []*hl7.Segment
	switch {
	case c.Query("type") != "":
		segments = msg.SegmentsByType(c.Query("type"))
	case c.Query("index") != "":
		index, err := queryIndex(c)
		if err != nil {
			return err
		}
		segments = msg.SegmentsByIndex(index)
	default:
		segments = msg.Segments()
	}
	return c.JSON(segmentResponses(segments))
}

func (s *Server) groupsHandler(c *fiber.Ctx) error {
	entry, err := s.entry(c)
	if err != nil {
		return err
	}
	typ := c.Query("type")
	if typ == "" {
		return fiber.NewError(fiber.StatusBadRequest, "type query parameter is required")
	}
	var groups [][]*hl7.Segment
	if c.Query("mode") == "corrected" {
		groups = entry.Message.Groups(typ)
	} else {
		groups = entry.Message.GroupedSegments(typ)
	}
	out := make([][]SegmentResponse, len(groups))
	for i, group := range groups {
		out[i] = segmentResponses(group)
	}
	return c.JSON(out)
}

func (s *Server) textHandler(c *fiber.Ctx) error {
	entry, err := s.entry(c)
	if err != nil {
		return err
	}
	text, err := entry.Message.Text(c.QueryBool("header", true))
	if errors.Is(err, hl7.ErrNoHeader) {
		return fiber.NewError(fiber.StatusUnprocessableEntity, err.Error())
	}
	if err != nil {
		return err
	}
	c.Set(fiber.HeaderContentType, fiber.MIMETextPlainCharsetUTF8)
	return c.SendString(text)
}

func (s *Server) documentHandler(c *fiber.Ctx) error {
	entry, err := s.entry(c)
	if err != nil {
		return err
	}
	doc := parsers.NewDocument(entry.Message)
	switch c.Query("format", "json") {
	case "json":
		data, err := doc.JSON()
		if err != nil {
			return err
		}
		c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
		return c.Send(data)
	case "xml":
		data, err := doc.XML()
		if err != nil {
			return err
		}
		c.Set(fiber.HeaderContentType, fiber.MIMEApplicationXMLCharsetUTF8)
		return c.Send(data)
	default:
		return fiber.NewError(fiber.StatusBadRequest, "format must be json or xml")
	}
}

func (s *Server) entry(c *fiber.Ctx) (*store.Entry, error) {
	entry, err := s.store.Get(c.Params("id"))
	if errors.Is(err, store.ErrNotFound) {
		return nil, fiber.NewError(fiber.StatusNotFound, err.Error())
	}
	return entry, err
}

func messageResponse(entry *store.Entry) MessageResponse {
	return MessageResponse{
		ID:        entry.ID,
		Type:      entry.Message.Type(),
		ControlID: entry.Message.ControlID(),
		Segments:  entry.Message.Len(),
		Origin:    entry.Origin,
		Stored:    entry.Stored,
	}
}

func segmentResponses(segments []*hl7.Segment) []SegmentResponse {
	out := make([]SegmentResponse, len(segments))
	for i, segment := range segments {
		out[i] = SegmentResponse{Index: segment.Index(), Type: segment.Type(), Raw: segment.Raw()}
	}
	return out
}

func (s *Server) Start(addr string) error {
	s.logger.Info().Str("address", addr).Msg("Starting HL7 API server")
	return s.app.Listen(addr)
}

func (s *Server) Shutdown() error {
	s.logger.Info().Msg("Shutting down HL7 API server gracefully")
	return s.app.Shutdown()
}
