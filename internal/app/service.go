// Package app contains the application orchestration layer. Service drives a
// getPhoto bridge call from options to an encoded photo, suspending at each
// point where the host shell must act and resuming when Deliver hands it the
// host's answer.
package app

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"io"
	"log/slog"
	"sync"

	"github.com/haukened/snap/internal/domain"
	"github.com/haukened/snap/internal/metrics"
	"github.com/haukened/snap/internal/normalize"
)

// Service orchestrates permission gating, acquisition and result shaping
// using the injected ports. The zero value is not usable; Host, Store,
// Resolver and Normalizer are required.
type Service struct {
	Host       Host
	Store      CaptureStore
	Resolver   ContentResolver
	Normalizer *normalize.Normalizer
	Gallery    Gallery      // optional; nil disables saveToGallery
	Metrics    Metrics      // optional
	Logger     *slog.Logger // optional (defaults to slog.Default())
	WebPrefix  string       // prefix for webPath of URI results, e.g. "/files/"

	once  sync.Once
	calls *registry
}

func (s *Service) registry() *registry {
	s.once.Do(func() { s.calls = newRegistry() })
	return s.calls
}

func (s *Service) log() *slog.Logger {
	if s.Logger == nil {
		return slog.Default().With("domain", "camera")
	}
	return s.Logger.With("domain", "camera")
}

func (s *Service) inc(name string) {
	if s.Metrics != nil {
		s.Metrics.Inc(name, 1)
	}
}

// GetPhoto validates opts, gates on permissions, runs the chosen acquisition
// flow and returns the normalized photo. It blocks until the host has
// answered every request or ctx is done.
func (s *Service) GetPhoto(ctx context.Context, opts domain.Options) (domain.Photo, error) {
	settings, err := domain.NewSettings(opts)
	if err != nil {
		return domain.Photo{}, err
	}
	call, err := s.registry().open()
	if err != nil {
		return domain.Photo{}, err
	}
	defer s.registry().close(call.id)
	log := s.log().With("call", call.id.String())
	log.Debug("get photo", "source", settings.Source, "result", settings.ResultType)

	photo, err := s.acquire(ctx, call, settings)
	if err != nil {
		s.recordFailure(log, err)
		return domain.Photo{}, err
	}
	return photo, nil
}

func (s *Service) acquire(ctx context.Context, call *pendingCall, settings domain.Settings) (domain.Photo, error) {
	if settings.Source == domain.SourcePrompt {
		src, err := s.promptSource(ctx, call)
		if err != nil {
			return domain.Photo{}, err
		}
		settings = settings.WithSource(src)
	}
	if err := s.ensurePermissions(ctx, call, domain.RequiredPermissions(settings.Source, settings.SaveToGallery)); err != nil {
		return domain.Photo{}, err
	}
	if settings.Source == domain.SourceCamera {
		return s.openCamera(ctx, call, settings)
	}
	return s.openPhotos(ctx, call, settings)
}

func (s *Service) recordFailure(log *slog.Logger, err error) {
	switch {
	case errors.Is(err, domain.ErrUserCancelled):
		s.inc(metrics.CounterCallsCancelled)
		log.Info("call rejected", "code", "user_cancelled")
	case errors.Is(err, domain.ErrPermissionDenied):
		s.inc(metrics.CounterPermissionDenied)
		log.Info("call rejected", "code", "permission_denied")
	case errors.Is(err, domain.ErrDecode):
		s.inc(metrics.CounterDecodeErrors)
		log.Warn("call rejected", "code", "decode_error", "err", err)
	case errors.Is(err, context.Canceled):
		log.Info("call abandoned")
	default:
		s.inc(metrics.CounterCallsFailed)
		log.Error("call rejected", "err", err)
	}
}

// await blocks until the event armed by expect arrives or ctx ends.
func (s *Service) await(ctx context.Context, call *pendingCall) (Event, error) {
	select {
	case ev := <-call.events:
		return ev, nil
	case <-ctx.Done():
		return Event{}, ctx.Err()
	}
}

func (s *Service) promptSource(ctx context.Context, call *pendingCall) (domain.Source, error) {
	s.registry().expect(call, EventSource)
	if err := s.Host.PromptSource(ctx, call.id); err != nil {
		return 0, fmt.Errorf("prompt source: %w", err)
	}
	ev, err := s.await(ctx, call)
	if err != nil {
		return 0, err
	}
	if ev.Cancelled {
		return 0, domain.ErrUserCancelled
	}
	if ev.Source != domain.SourceCamera && ev.Source != domain.SourcePhotos {
		return 0, fmt.Errorf("%w: prompt answered with %s", domain.ErrInvalidOption, ev.Source)
	}
	return ev.Source, nil
}

// ensurePermissions requests whatever in need is not yet granted and fails
// with ErrPermissionDenied unless the host grants all of it.
func (s *Service) ensurePermissions(ctx context.Context, call *pendingCall, need []domain.PermissionAlias) error {
	if len(need) == 0 {
		return nil
	}
	states, err := s.Host.PermissionStates(ctx, need)
	if err != nil {
		return fmt.Errorf("query permissions: %w", err)
	}
	missing := ungranted(need, states)
	if len(missing) == 0 {
		return nil
	}
	s.registry().expect(call, EventPermissions)
	if err := s.Host.RequestPermissions(ctx, call.id, missing); err != nil {
		return fmt.Errorf("request permissions: %w", err)
	}
	ev, err := s.await(ctx, call)
	if err != nil {
		return err
	}
	if denied := ungranted(missing, ev.States); len(denied) > 0 {
		return fmt.Errorf("%w: %v", domain.ErrPermissionDenied, denied)
	}
	return nil
}

func ungranted(aliases []domain.PermissionAlias, states map[domain.PermissionAlias]domain.PermissionState) []domain.PermissionAlias {
	var out []domain.PermissionAlias
	for _, a := range aliases {
		if !states[a].Granted() {
			out = append(out, a)
		}
	}
	return out
}

// openCamera allocates the capture target, launches the camera and decodes
// what the host wrote. The target belongs to this call and is released on
// every exit path.
func (s *Service) openCamera(ctx context.Context, call *pendingCall, settings domain.Settings) (domain.Photo, error) {
	target, err := s.Store.Allocate(ctx, call.id)
	if err != nil {
		return domain.Photo{}, fmt.Errorf("%w: %w", domain.ErrFileSave, err)
	}
	defer func() {
		if rerr := s.Store.Release(context.WithoutCancel(ctx), target.ID); rerr != nil && !errors.Is(rerr, domain.ErrNotFound) {
			s.log().Warn("release capture file", "file", target.ID.String(), "err", rerr)
		}
	}()

	s.registry().expect(call, EventCapture)
	if err := s.Host.LaunchCapture(ctx, call.id, target); err != nil {
		return domain.Photo{}, fmt.Errorf("%w: %w", domain.ErrFileSave, err)
	}
	ev, err := s.await(ctx, call)
	if err != nil {
		return domain.Photo{}, err
	}
	if ev.Cancelled {
		return domain.Photo{}, domain.ErrUserCancelled
	}
	ref, err := s.Store.Lookup(ctx, target.ID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.Photo{}, domain.ErrNoFileFound
		}
		return domain.Photo{}, err
	}
	img, err := s.decode(ctx, ref.URI())
	if err != nil {
		// An empty or unreadable target means the camera returned nothing.
		if errors.Is(err, domain.ErrDecode) || errors.Is(err, domain.ErrNotFound) {
			return domain.Photo{}, fmt.Errorf("%w: %w", domain.ErrUserCancelled, err)
		}
		return domain.Photo{}, err
	}
	photo, err := s.shape(ctx, call, settings, img, ref.URI(), true)
	if err != nil {
		return domain.Photo{}, err
	}
	s.inc(metrics.CounterPhotosCamera)
	return photo, nil
}

// openPhotos launches the picker and decodes the selected reference.
func (s *Service) openPhotos(ctx context.Context, call *pendingCall, settings domain.Settings) (domain.Photo, error) {
	s.registry().expect(call, EventPick)
	if err := s.Host.LaunchPicker(ctx, call.id); err != nil {
		return domain.Photo{}, fmt.Errorf("launch picker: %w", err)
	}
	ev, err := s.await(ctx, call)
	if err != nil {
		return domain.Photo{}, err
	}
	if ev.URI == "" {
		return domain.Photo{}, domain.ErrUserCancelled
	}
	img, err := s.decode(ctx, ev.URI)
	if err != nil {
		if errors.Is(err, domain.ErrDecode) {
			return domain.Photo{}, err
		}
		return domain.Photo{}, fmt.Errorf("%w: %w", domain.ErrDecode, err)
	}
	photo, err := s.shape(ctx, call, settings, img, ev.URI, false)
	if err != nil {
		return domain.Photo{}, err
	}
	s.inc(metrics.CounterPhotosLibrary)
	return photo, nil
}

// decode opens uri through the resolver and decodes it; the stream is
// closed before returning on every path.
func (s *Service) decode(ctx context.Context, uri string) (image.Image, error) {
	rc, err := s.Resolver.Open(ctx, uri)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return s.Normalizer.Decode(rc)
}

// shape normalizes img, encodes it as JPEG and builds the requested result.
func (s *Service) shape(ctx context.Context, call *pendingCall, settings domain.Settings, img image.Image, uri string, fromCamera bool) (domain.Photo, error) {
	img, rec := s.Normalizer.Normalize(ctx, img, uri, settings.CorrectOrientation, settings.Width, settings.Height)

	var buf bytes.Buffer
	if err := normalize.EncodeJPEG(&buf, img, domain.JPEGQuality, rec.Orientation()); err != nil {
		return domain.Photo{}, fmt.Errorf("encode jpeg: %w", err)
	}
	if s.Metrics != nil {
		s.Metrics.Observe(metrics.SummaryOutputBytes, int64(buf.Len()))
	}

	photo := domain.Photo{Format: domain.FormatJPEG}
	if fromCamera && settings.SaveToGallery && s.Gallery != nil {
		// A failed gallery copy is reported through Saved, not as a rejection.
		if loc, err := s.Gallery.Save(ctx, buf.Bytes()); err != nil {
			s.log().Warn("unable to save the image in the gallery", "call", call.id.String(), "err", err)
		} else {
			photo.Saved = true
			s.inc(metrics.CounterGallerySaved)
			s.log().Debug("saved to gallery", "call", call.id.String(), "location", loc)
		}
	}

	switch settings.ResultType {
	case domain.ResultURI:
		ref, err := s.Store.SaveResult(ctx, call.id, buf.Bytes())
		if err != nil {
			return domain.Photo{}, fmt.Errorf("%w: %w", domain.ErrFileSave, err)
		}
		photo.Path = ref.Path
		photo.WebPath = s.WebPrefix + ref.ID.String()
	default:
		photo.Base64String = base64.StdEncoding.EncodeToString(buf.Bytes())
	}
	return photo, nil
}

// CheckPermissions reports the host state of every permission alias.
func (s *Service) CheckPermissions(ctx context.Context) (map[domain.PermissionAlias]domain.PermissionState, error) {
	return s.Host.PermissionStates(ctx, domain.AllPermissions())
}

// RequestPermissions asks the host for the named aliases (all of them when
// names is empty) and returns the state of every alias afterwards. Unlike
// GetPhoto a denial is not an error here.
func (s *Service) RequestPermissions(ctx context.Context, names []string) (map[domain.PermissionAlias]domain.PermissionState, error) {
	aliases := domain.AllPermissions()
	if len(names) > 0 {
		aliases = aliases[:0:0]
		for _, n := range names {
			a, err := domain.ParsePermissionAlias(n)
			if err != nil {
				return nil, err
			}
			aliases = append(aliases, a)
		}
	}
	call, err := s.registry().open()
	if err != nil {
		return nil, err
	}
	defer s.registry().close(call.id)

	states, err := s.Host.PermissionStates(ctx, domain.AllPermissions())
	if err != nil {
		return nil, fmt.Errorf("query permissions: %w", err)
	}
	missing := ungranted(aliases, states)
	if len(missing) == 0 {
		return states, nil
	}
	s.registry().expect(call, EventPermissions)
	if err := s.Host.RequestPermissions(ctx, call.id, missing); err != nil {
		return nil, fmt.Errorf("request permissions: %w", err)
	}
	ev, err := s.await(ctx, call)
	if err != nil {
		return nil, err
	}
	for a, st := range ev.States {
		states[a] = st
	}
	return states, nil
}

// Deliver resumes the call identified by callID with a host outcome.
func (s *Service) Deliver(callID string, ev Event) error {
	id, err := domain.ParseID(callID)
	if err != nil {
		return err
	}
	return s.registry().deliver(id, ev)
}

// Awaiting reports which event the call is waiting for. EventNone means the
// call exists but is not suspended on the host right now.
func (s *Service) Awaiting(callID string) (EventKind, error) {
	id, err := domain.ParseID(callID)
	if err != nil {
		return EventNone, err
	}
	return s.registry().awaiting(id)
}

// Pending reports the number of calls in flight.
func (s *Service) Pending() int { return s.registry().len() }

// UploadCapture stores the bytes the host camera produced into the capture
// target identified by fileID.
func (s *Service) UploadCapture(ctx context.Context, fileID string, r io.Reader) (int64, error) {
	id, err := domain.ParseID(fileID)
	if err != nil {
		return 0, err
	}
	ref, err := s.Store.Lookup(ctx, id)
	if err != nil {
		return 0, err
	}
	if ref.Kind != domain.FileCapture {
		return 0, domain.ErrNotFound
	}
	return s.Store.Write(ctx, id, r)
}

// OpenResult streams a URI-shaped result previously returned as webPath.
func (s *Service) OpenResult(ctx context.Context, fileID string) (io.ReadCloser, error) {
	id, err := domain.ParseID(fileID)
	if err != nil {
		return nil, err
	}
	ref, err := s.Store.Lookup(ctx, id)
	if err != nil {
		return nil, err
	}
	if ref.Kind != domain.FileResult {
		return nil, domain.ErrNotFound
	}
	return s.Store.Open(ctx, id)
}
