package gateway

import (
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rbroggi/recyclo/internal/core/model"
)

type signUpRequest struct {
	DisplayName string `json:"display_name"`
	Email       string `json:"email"`
	Password    string `json:"password"`
	Role        string `json:"role"`
}

func (s *Server) signUp(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	req := new(signUpRequest)
	if err := decodeBody(r, req); err != nil {
		s.writeError(w, r, err)
		return
	}
	role, err := model.ParseRole(req.Role)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	session, err := s.accounts.SignUp(r.Context(), model.SignUpArgs{
		DisplayName: req.DisplayName,
		Email:       req.Email,
		Password:    req.Password,
		Role:        role,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, session)
}

type signInRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *Server) signIn(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	req := new(signInRequest)
	if err := decodeBody(r, req); err != nil {
		s.writeError(w, r, err)
		return
	}
	session, err := s.accounts.SignIn(r.Context(), req.Email, req.Password)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func (s *Server) signOut(w http.ResponseWriter, r *http.Request, _ map[string]string, _ model.User) {
	if err := s.accounts.SignOut(r.Context(), bearerToken(r)); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// profile returns the signed-in user.
func (s *Server) profile(w http.ResponseWriter, _ *http.Request, _ map[string]string, me model.User) {
	writeJSON(w, http.StatusOK, me)
}

type contactRequest struct {
	// ListingID opens the conversation with the owner of the listing.
	ListingID string `json:"listing_id"`
	// UserID opens the conversation with the user, Text is the opening message.
	UserID string `json:"user_id"`
	Text   string `json:"text"`
}

type contactResponse struct {
	Key     string `json:"key"`
	Created bool   `json:"created"`
}

func (s *Server) contact(w http.ResponseWriter, r *http.Request, _ map[string]string, me model.User) {
	if !s.contactLimiter.Allow(me.ID) {
		s.writeError(w, r, errRateLimited)
		return
	}
	req := new(contactRequest)
	if err := decodeBody(r, req); err != nil {
		s.writeError(w, r, err)
		return
	}

	var (
		resp *model.ContactResponse
		err  error
	)
	switch {
	case req.ListingID != "":
		resp, err = s.listings.ContactOwner(r.Context(), me, req.ListingID)
	case req.UserID != "":
		resp, err = s.conversations.Contact(r.Context(), me, model.ContactArgs{
			OtherUserID: req.UserID,
			OpeningText: req.Text,
		})
	default:
		err = fmt.Errorf("%w: listing_id or user_id is required", model.ErrInvalidArgument)
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	statusCode := http.StatusOK
	if resp.Created {
		statusCode = http.StatusCreated
	}
	writeJSON(w, statusCode, contactResponse{Key: resp.Key, Created: resp.Created})
}

func (s *Server) listConversations(w http.ResponseWriter, r *http.Request, _ map[string]string, me model.User) {
	conversations, err := s.conversations.ListConversations(r.Context(), me)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(conversations))
}

func (s *Server) getConversation(w http.ResponseWriter, r *http.Request, params map[string]string, me model.User) {
	conversation, err := s.conversations.GetConversation(r.Context(), me, params["key"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, conversation)
}

func (s *Server) listMessages(w http.ResponseWriter, r *http.Request, params map[string]string, me model.User) {
	messages, err := s.conversations.ListMessages(r.Context(), me, params["key"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(messages))
}

type sendMessageRequest struct {
	Text string `json:"text"`
}

func (s *Server) sendMessage(w http.ResponseWriter, r *http.Request, params map[string]string, me model.User) {
	req := new(sendMessageRequest)
	if err := decodeBody(r, req); err != nil {
		s.writeError(w, r, err)
		return
	}
	msg, err := s.conversations.SendMessage(r.Context(), me, model.SendMessageArgs{Key: params["key"], Text: req.Text})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, msg)
}

// publishListing reads a multipart form with the image file and the kind, quantity, description,
// lat and lng fields.
func (s *Server) publishListing(w http.ResponseWriter, r *http.Request, _ map[string]string, me model.User) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadSize)
	if err := r.ParseMultipartForm(s.maxUploadSize); err != nil {
		s.writeError(w, r, fmt.Errorf("%w: malformed multipart form: %s", model.ErrInvalidArgument, err.Error()))
		return
	}
	defer r.MultipartForm.RemoveAll()

	location, err := parseLocation(r.FormValue("lat"), r.FormValue("lng"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	args := model.PublishListingArgs{
		Kind:        model.MaterialKind(strings.TrimSpace(r.FormValue("kind"))),
		Quantity:    r.FormValue("quantity"),
		Description: r.FormValue("description"),
		Location:    location,
	}
	file, header, err := r.FormFile("image")
	switch {
	case err == nil:
		defer file.Close()
		args.Image = file
		args.ImageExt = filepath.Ext(header.Filename)
		args.ContentType = header.Header.Get("Content-Type")
	case !errors.Is(err, http.ErrMissingFile):
		s.writeError(w, r, fmt.Errorf("%w: unreadable image: %s", model.ErrInvalidArgument, err.Error()))
		return
	}

	listing, err := s.listings.Publish(r.Context(), me, args)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, listing)
}

// parseLocation returns nil when both coordinates are absent.
func parseLocation(lat, lng string) (*model.GeoPoint, error) {
	if lat == "" && lng == "" {
		return nil, nil
	}
	latV, errLat := strconv.ParseFloat(lat, 64)
	lngV, errLng := strconv.ParseFloat(lng, 64)
	if errLat != nil || errLng != nil {
		return nil, fmt.Errorf("%w: invalid coordinates %q, %q", model.ErrInvalidArgument, lat, lng)
	}
	return &model.GeoPoint{Lat: latV, Lng: lngV}, nil
}

func (s *Server) feed(w http.ResponseWriter, r *http.Request, _ map[string]string, _ model.User) {
	listings, err := s.listings.Feed(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(listings))
}

type mapResponse struct {
	Pins    []model.Listing          `json:"pins"`
	Centers []model.CollectionCenter `json:"centers"`
}

func (s *Server) mapPins(w http.ResponseWriter, r *http.Request, _ map[string]string, _ model.User) {
	pins, err := s.listings.MapPins(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mapResponse{Pins: nonNil(pins), Centers: s.listings.CollectionCenters()})
}
