package api

import (
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/yohanns/storefront/internal/apperr"
	"github.com/yohanns/storefront/internal/domain"
	"github.com/yohanns/storefront/internal/media"
	"github.com/yohanns/storefront/internal/orders"
)

const multipartMemory = 8 << 20

// formFiles parses a multipart body and opens up to limit files from field.
// The returned func closes them.
func formFiles(w http.ResponseWriter, r *http.Request, field string, limit int) ([]media.File, func(), error) {
	r.Body = http.MaxBytesReader(w, r.Body, int64(limit)*media.MaxFileSize+maxBodyBytes)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, func() {}, apperr.Invalid("File too large")
		}
		if errors.Is(err, http.ErrNotMultipart) {
			return nil, func() {}, nil
		}
		return nil, func() {}, apperr.Invalid("Invalid multipart body")
	}
	headers := r.MultipartForm.File[field]
	if len(headers) > limit {
		return nil, func() {}, apperr.Invalid("Too many files").With("maxFiles", limit)
	}
	var opened []multipart.File
	closeAll := func() {
		for _, f := range opened {
			f.Close()
		}
	}
	files := make([]media.File, 0, len(headers))
	for _, h := range headers {
		f, err := h.Open()
		if err != nil {
			closeAll()
			return nil, func() {}, apperr.Invalid("Invalid multipart body")
		}
		opened = append(opened, f)
		files = append(files, media.File{
			Name:        h.Filename,
			ContentType: h.Header.Get("Content-Type"),
			Size:        h.Size,
			Body:        f,
		})
	}
	return files, closeAll, nil
}

func (s *Server) uploadOne(w http.ResponseWriter, r *http.Request, field, folder, missing string) (*media.Object, bool) {
	files, done, err := formFiles(w, r, field, 1)
	defer done()
	if err == nil && len(files) == 0 {
		err = apperr.Invalid(missing)
	}
	if err != nil {
		s.writeError(w, r, err)
		return nil, false
	}
	obj, err := s.svc.Media.Upload(r.Context(), folder, files[0])
	if err != nil {
		s.writeError(w, r, err)
		return nil, false
	}
	return obj, true
}

func (s *Server) uploadFile(w http.ResponseWriter, r *http.Request) {
	obj, ok := s.uploadOne(w, r, "file", media.FolderUploads, "No file provided")
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "url": obj.URL, "publicId": obj.PublicID})
}

func (s *Server) uploadProfileImage(w http.ResponseWriter, r *http.Request) {
	obj, ok := s.uploadOne(w, r, "image", media.FolderProfiles, "No image file provided")
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "imageUrl": obj.URL, "publicId": obj.PublicID})
}

func (s *Server) uploadImage(w http.ResponseWriter, r *http.Request) {
	obj, ok := s.uploadOne(w, r, "image", media.FolderProducts, "No image file provided")
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "imageUrl": obj.URL, "publicId": obj.PublicID})
}

func (s *Server) uploadImages(w http.ResponseWriter, r *http.Request) {
	files, done, err := formFiles(w, r, "images", 5)
	defer done()
	if err == nil && len(files) == 0 {
		err = apperr.Invalid("No image files provided")
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	objs, err := s.svc.Media.UploadAll(r.Context(), media.FolderProducts, files)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	urls := make([]string, len(objs))
	ids := make([]string, len(objs))
	for i, o := range objs {
		urls[i], ids[i] = o.URL, o.PublicID
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "imageUrls": urls, "publicIds": ids})
}

func (s *Server) deleteUpload(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.Media.Delete(r.Context(), r.PathValue("publicId")); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Image deleted successfully"})
}

// uploadDesignFiles attaches an artist's artwork to an order.
func (s *Server) uploadDesignFiles(w http.ResponseWriter, r *http.Request) {
	p := principal(r)
	if !p.Is(domain.RoleArtist) {
		s.writeError(w, r, apperr.Forbidden("Only artists can upload design files").
			With("requiredRole", domain.RoleArtist).With("currentRole", p.Role))
		return
	}
	files, done, err := formFiles(w, r, "designFiles", 10)
	defer done()
	if err == nil && len(files) == 0 {
		err = apperr.Invalid("No design files provided")
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	orderID := r.PathValue("orderId")
	if _, err := s.svc.Orders.Get(r.Context(), orderID); err != nil {
		s.writeError(w, r, err)
		return
	}
	objs, err := s.svc.Media.UploadAll(r.Context(), media.FolderDesigns, files)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	o, previous, err := s.svc.Orders.AttachDesignFiles(r.Context(), orderID, designFiles(objs))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	msg := "Design files uploaded successfully"
	if o.Status != previous {
		msg += " and order moved to " + o.Status + " status"
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":        true,
		"message":        msg,
		"designFiles":    o.DesignFiles,
		"order":          o,
		"statusChanged":  o.Status != previous,
		"previousStatus": previous,
		"newStatus":      o.Status,
	})
}

func designFiles(objs []media.Object) []domain.DesignFile {
	out := make([]domain.DesignFile, len(objs))
	for i, o := range objs {
		out[i] = domain.DesignFile{Filename: o.Filename, URL: o.URL, PublicID: o.PublicID, UploadedAt: o.UploadedAt}
	}
	return out
}

func (s *Server) listDesignFiles(w http.ResponseWriter, r *http.Request) {
	files, err := s.svc.Orders.DesignFiles(r.Context(), r.PathValue("orderId"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "designFiles": files})
}

func (s *Server) deleteDesignFile(w http.ResponseWriter, r *http.Request) {
	publicID := r.PathValue("publicId")
	if err := s.svc.Media.Delete(r.Context(), publicID); err != nil && apperr.KindOf(err) != apperr.KindNotFound {
		s.writeError(w, r, err)
		return
	}
	files, err := s.svc.Orders.RemoveDesignFile(r.Context(), r.PathValue("orderId"), publicID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":     true,
		"message":     "Design file deleted successfully",
		"designFiles": files,
	})
}

// customDesignForm reads the intake from multipart fields. Members and the
// delivery address arrive as JSON strings; a plain address string is kept
// as the address line.
func customDesignForm(r *http.Request, req *orders.CustomDesignRequest) error {
	if r.MultipartForm == nil {
		return apperr.Invalid("Invalid multipart body")
	}
	v := r.MultipartForm.Value
	get := func(k string) string {
		if vals := v[k]; len(vals) > 0 {
			return strings.TrimSpace(vals[0])
		}
		return ""
	}
	req.UserID = get("userId")
	req.ClientName = get("clientName")
	req.Email = get("email")
	req.Phone = get("phone")
	req.TeamName = get("teamName")
	req.ApparelType = get("apparelType")
	req.ShippingMethod = get("shippingMethod")
	req.OrderNotes = get("orderNotes")
	req.IsWalkIn, _ = strconv.ParseBool(get("isWalkIn"))
	if id := get("pickupBranchId"); id != "" {
		n, err := strconv.ParseInt(id, 10, 64)
		if err != nil {
			return apperr.Invalid("Invalid pickupBranchId")
		}
		req.PickupBranchID = &n
	}
	if m := get("members"); m != "" {
		if err := json.Unmarshal([]byte(m), &req.Members); err != nil {
			return apperr.Invalid("Invalid members")
		}
	}
	if a := get("deliveryAddress"); a != "" {
		req.DeliveryAddress = &domain.DeliveryAddress{}
		if err := json.Unmarshal([]byte(a), req.DeliveryAddress); err != nil {
			req.DeliveryAddress = &domain.DeliveryAddress{Address: a}
		}
	}
	return nil
}

// createCustomDesign accepts the intake as JSON, or as a multipart form
// with reference images under designImages.
func (s *Server) createCustomDesign(w http.ResponseWriter, r *http.Request) {
	var req orders.CustomDesignRequest
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/") {
		files, done, err := formFiles(w, r, "designImages", 10)
		defer done()
		if err == nil {
			err = customDesignForm(r, &req)
		}
		if err == nil && len(files) > 0 {
			var objs []media.Object
			if objs, err = s.svc.Media.UploadAll(r.Context(), media.FolderCustomDesigns, files); err == nil {
				for _, o := range objs {
					req.DesignImages = append(req.DesignImages, o.URL)
				}
			}
		}
		if err != nil {
			s.writeError(w, r, err)
			return
		}
	} else if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	// Staff place walk-in orders on a customer's behalf.
	p := principal(r)
	if !p.IsStaff() || req.UserID == "" {
		req.UserID = p.ID
	}
	if !p.IsStaff() {
		req.IsWalkIn = false
	}
	o, err := s.svc.Orders.CreateCustomDesign(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"success": true,
		"message": "Custom design order created successfully",
		"order":   o,
	})
}

func (s *Server) listCustomDesigns(w http.ResponseWriter, r *http.Request) {
	list, err := s.svc.Orders.ListCustomDesigns(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"orders": list})
}

func (s *Server) getCustomDesign(w http.ResponseWriter, r *http.Request) {
	o, err := s.svc.Orders.GetCustomDesign(r.Context(), r.PathValue("id"))
	if err == nil && !canSeeOrder(principal(r), o) {
		err = errOrderDenied
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"order": o})
}
