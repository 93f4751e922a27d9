// Package api implements the daemon's gRPC surface.
package api

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/matheus3301/comet/internal/bus"
	"github.com/matheus3301/comet/internal/contact"
	"github.com/matheus3301/comet/internal/message"
	"github.com/matheus3301/comet/internal/prefs"
	"github.com/matheus3301/comet/internal/status"
	"github.com/matheus3301/comet/internal/token"
	"github.com/matheus3301/comet/internal/transport"
)

// Queue accepts outbound sends.
type Queue interface {
	Enqueue(e contact.Entry, body string) (string, error)
}

// TokenVerifier checks a scanned push token.
type TokenVerifier interface {
	Verify(tok string) (token.Claims, error)
}

// Router exposes the dispatch policy.
type Router interface {
	Config() transport.Config
	SetConfig(transport.Config)
}

// LinkState reports the Bluetooth link.
type LinkState interface {
	State() status.State
	Linked() (addr string, ok bool)
}

// watchedNamespaces are the event prefixes streamed by WatchEvents.
var watchedNamespaces = []string{"notice.", "message.", "inbound.", "bluetooth.", "action."}

// CometService implements CometServer.
type CometService struct {
	UnimplementedCometServer

	profileName string
	startedAt   time.Time
	prefs       *prefs.Prefs
	queue       Queue
	verifier    TokenVerifier
	router      Router
	link        LinkState
	bus         *bus.Bus
	logger      *zap.Logger
}

// NewCometService creates the service.
func NewCometService(profileName string, p *prefs.Prefs, q Queue, v TokenVerifier, r Router, link LinkState, b *bus.Bus, logger *zap.Logger) *CometService {
	return &CometService{
		profileName: profileName,
		startedAt:   time.Now(),
		prefs:       p,
		queue:       q,
		verifier:    v,
		router:      r,
		link:        link,
		bus:         b,
		logger:      logger,
	}
}

func decode(in *structpb.Struct, v any) error {
	if err := FromStruct(in, v); err != nil {
		return grpcstatus.Errorf(codes.InvalidArgument, "decode request: %v", err)
	}
	return nil
}

func encode(v any) (*structpb.Struct, error) {
	s, err := ToStruct(v)
	if err != nil {
		return nil, grpcstatus.Errorf(codes.Internal, "encode response: %v", err)
	}
	return s, nil
}

// BuildWire renders the wire text for a send request.
func BuildWire(req SendRequest) (string, error) {
	switch req.Kind {
	case SendKindURL:
		lines := append([]string(nil), req.Text...)
		if req.URL != "" {
			lines = append(lines, req.URL)
		}
		text := strings.Join(lines, "\n")
		if _, ok := message.ParseURL(text); !ok {
			return "", errors.New("url message needs a link")
		}
		return message.EncodeURLMessage(req.Title, text), nil
	case SendKindGeo:
		if strings.TrimSpace(req.Lat) == "" || strings.TrimSpace(req.Lng) == "" {
			return "", errors.New("geo message needs lat and lng")
		}
		return message.EncodeGeoMessage(req.Lat, req.Lng, req.LocationName), nil
	case SendKindRaw, "":
		m := message.Message{
			TextList:     req.Text,
			URL:          req.URL,
			Lat:          req.Lat,
			Lng:          req.Lng,
			LocationName: req.LocationName,
		}
		if m.IsEmpty() {
			return "", transport.Reject(transport.ReasonEmptyMessage)
		}
		return message.Encode(m), nil
	default:
		return "", errors.New("unknown kind " + req.Kind)
	}
}

func (s *CometService) recipient(to string) (contact.Entry, error) {
	to = strings.TrimSpace(to)
	entries, err := s.prefs.Contacts()
	if err != nil {
		return contact.Entry{}, err
	}
	if e, ok := contact.Find(entries, to); ok {
		return e, nil
	}
	return contact.Entry{Label: to, Number: to}, nil
}

func (s *CometService) Send(_ context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req SendRequest
	if err := decode(in, &req); err != nil {
		return nil, err
	}

	wire, err := BuildWire(req)
	if err != nil {
		return nil, grpcstatus.Error(codes.InvalidArgument, err.Error())
	}
	to, err := s.recipient(req.To)
	if err != nil {
		return nil, grpcstatus.Errorf(codes.Internal, "load contacts: %v", err)
	}

	id, err := s.queue.Enqueue(to, wire)
	if err != nil {
		var rej *transport.RejectError
		if errors.As(err, &rej) {
			s.bus.Publish(bus.Event{Kind: bus.KindNotice, Payload: transport.Notice{Text: rej.Reason}})
			return nil, grpcstatus.Error(codes.InvalidArgument, rej.Reason)
		}
		return nil, grpcstatus.Errorf(codes.Internal, "queue outbox: %v", err)
	}
	return encode(SendResponse{Accepted: true, ClientMsgID: id, Wire: wire})
}

func (s *CometService) ListHistory(_ context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	msgs, err := s.prefs.Messages()
	if err != nil {
		return nil, grpcstatus.Errorf(codes.Internal, "list history: %v", err)
	}
	if msgs == nil {
		msgs = []message.Message{}
	}
	return encode(HistoryResponse{Messages: msgs})
}

func (s *CometService) ListContacts(_ context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	entries, err := s.prefs.Contacts()
	if err != nil {
		return nil, grpcstatus.Errorf(codes.Internal, "list contacts: %v", err)
	}
	if entries == nil {
		entries = []contact.Entry{}
	}
	return encode(ContactsResponse{Contacts: entries})
}

func (s *CometService) AddContact(_ context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req ContactRequest
	if err := decode(in, &req); err != nil {
		return nil, err
	}
	e := contact.Entry{Label: req.Label, Number: req.Number, Type: contact.ParseType(req.Type)}
	if err := s.prefs.AddContact(e); err != nil {
		if errors.Is(err, prefs.ErrInvalidContact) {
			return nil, grpcstatus.Error(codes.InvalidArgument, err.Error())
		}
		return nil, grpcstatus.Errorf(codes.Internal, "add contact: %v", err)
	}
	return s.ListContacts(context.Background(), nil)
}

func (s *CometService) RemoveContact(_ context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req RemoveContactRequest
	if err := decode(in, &req); err != nil {
		return nil, err
	}
	removed, err := s.prefs.RemoveContact(req.Number)
	if err != nil {
		return nil, grpcstatus.Errorf(codes.Internal, "remove contact: %v", err)
	}
	return encode(RemoveContactResponse{Removed: removed})
}

func (s *CometService) ListQRContacts(_ context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	contacts, err := s.prefs.QRContacts()
	if err != nil {
		return nil, grpcstatus.Errorf(codes.Internal, "list qr contacts: %v", err)
	}
	return encode(QRContactsResponse{Contacts: contacts})
}

func (s *CometService) SaveQRContact(_ context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req QRContactRequest
	if err := decode(in, &req); err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.Name) == "" {
		return nil, grpcstatus.Error(codes.InvalidArgument, prefs.ErrEmptyName.Error())
	}
	claims, err := s.verifier.Verify(req.Token)
	if err != nil {
		s.logger.Info("rejected qr contact token", zap.String("name", req.Name), zap.Error(err))
		return nil, grpcstatus.Error(codes.InvalidArgument, err.Error())
	}
	if err := s.prefs.SaveQRContact(req.Name, strings.TrimSpace(req.Token)); err != nil {
		return nil, grpcstatus.Errorf(codes.Internal, "save qr contact: %v", err)
	}
	return encode(QRContactResponse{Saved: true, Subject: claims.Subject})
}

func (s *CometService) ListPushLog(_ context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	entries, err := s.prefs.PushMessages()
	if err != nil {
		return nil, grpcstatus.Errorf(codes.Internal, "list push log: %v", err)
	}
	if entries == nil {
		entries = []prefs.PushEntry{}
	}
	return encode(PushLogResponse{Entries: entries})
}

func (s *CometService) GetPushToken(_ context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	tok, err := s.prefs.PushToken()
	if err != nil {
		return nil, grpcstatus.Errorf(codes.Internal, "get push token: %v", err)
	}
	if tok == "" {
		return nil, grpcstatus.Error(codes.NotFound, "no push token registered")
	}
	return encode(PushTokenMessage{Token: tok})
}

func (s *CometService) SetPushToken(_ context.Context, in *structpb.Struct) (*emptypb.Empty, error) {
	var req PushTokenMessage
	if err := decode(in, &req); err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.Token) == "" {
		return nil, grpcstatus.Error(codes.InvalidArgument, "token must not be empty")
	}
	if err := s.prefs.SetPushToken(req.Token); err != nil {
		return nil, grpcstatus.Errorf(codes.Internal, "set push token: %v", err)
	}
	return &emptypb.Empty{}, nil
}

func (s *CometService) SetTransport(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req TransportRequest
	if err := decode(in, &req); err != nil {
		return nil, err
	}
	mode, err := transport.ParseMode(req.Mode)
	if err != nil {
		return nil, grpcstatus.Error(codes.InvalidArgument, err.Error())
	}
	fallback, err := transport.ParseKind(req.Fallback)
	if err != nil {
		return nil, grpcstatus.Error(codes.InvalidArgument, err.Error())
	}
	cfg := transport.Config{Mode: mode, Fallback: fallback}
	if err := s.prefs.SetTransportConfig(cfg); err != nil {
		return nil, grpcstatus.Errorf(codes.Internal, "save transport: %v", err)
	}
	s.router.SetConfig(cfg)
	s.logger.Info("transport policy changed", zap.String("mode", string(mode)), zap.String("fallback", string(fallback)))
	return s.GetStatus(ctx, nil)
}

func (s *CometService) GetStatus(_ context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	cfg := s.router.Config()
	addr, _ := s.link.Linked()
	return encode(StatusResponse{
		Profile:       s.profileName,
		Mode:          string(cfg.Mode),
		Fallback:      string(cfg.Fallback),
		BluetoothLink: string(s.link.State()),
		LinkAddress:   addr,
		UptimeMs:      time.Since(s.startedAt).Milliseconds(),
	})
}

func (s *CometService) WatchEvents(_ *emptypb.Empty, stream EventStream) error {
	ch, unsub := s.bus.SubscribeAll(64, watchedNamespaces...)
	defer unsub()

	for {
		select {
		case evt := <-ch:
			out, err := encode(EventEnvelope{
				EventID:          evt.ID,
				Kind:             evt.Kind,
				OccurredAtUnixMs: evt.Timestamp.UnixMilli(),
				Payload:          evt.Payload,
			})
			if err != nil {
				s.logger.Warn("dropping unencodable event", zap.String("kind", evt.Kind), zap.Error(err))
				continue
			}
			if err := stream.Send(out); err != nil {
				return err
			}
		case <-stream.Context().Done():
			return nil
		}
	}
}
