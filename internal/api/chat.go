package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/yohanns/storefront/internal/apperr"
	"github.com/yohanns/storefront/internal/chat"
	"github.com/yohanns/storefront/internal/domain"
)

// roomRequest carries the room id that the design chat endpoints take in
// the body.
type roomRequest struct {
	RoomID string `json:"room_id"`
}

func (s *Server) createDesignRoom(w http.ResponseWriter, r *http.Request) {
	var req struct {
		OrderID    string `json:"order_id"`
		CustomerID string `json:"customer_id"`
		ArtistID   string `json:"artist_id"`
		TaskID     string `json:"task_id"`
		RoomName   string `json:"room_name"`
	}
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	room, created, err := s.svc.Chat.CreateDesignRoom(r.Context(), principal(r), domain.DesignChatRoom{
		OrderID:    req.OrderID,
		CustomerID: req.CustomerID,
		ArtistID:   req.ArtistID,
		TaskID:     req.TaskID,
		RoomName:   req.RoomName,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, map[string]any{"room_id": room.ID, "room": room})
}

func (s *Server) sendDesignMessage(w http.ResponseWriter, r *http.Request) {
	var req struct {
		roomRequest
		chat.MessageInput
	}
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	m, err := s.svc.Chat.SendDesignMessage(r.Context(), principal(r), req.RoomID, req.MessageInput)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (s *Server) designMessages(w http.ResponseWriter, r *http.Request) {
	msgs, err := s.svc.Chat.DesignMessages(r.Context(), principal(r), r.PathValue("roomId"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, msgs)
}

func (s *Server) customerDesignRooms(w http.ResponseWriter, r *http.Request) {
	rooms, err := s.svc.Chat.CustomerDesignRooms(r.Context(), principal(r), r.PathValue("customerId"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rooms)
}

func (s *Server) artistDesignRooms(w http.ResponseWriter, r *http.Request) {
	rooms, err := s.svc.Chat.ArtistDesignRooms(r.Context(), principal(r), r.PathValue("artistId"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rooms)
}

func (s *Server) markDesignRead(w http.ResponseWriter, r *http.Request) {
	var req roomRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if _, err := s.svc.Chat.MarkDesignRead(r.Context(), principal(r), req.RoomID); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, success{Success: true})
}

func (s *Server) designCustomerInfo(w http.ResponseWriter, r *http.Request) {
	info, err := s.svc.Chat.CustomerInfo(r.Context(), principal(r), r.PathValue("roomId"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (s *Server) designRoomByOrder(w http.ResponseWriter, r *http.Request) {
	room, err := s.svc.Chat.DesignRoomByOrder(r.Context(), principal(r), r.PathValue("orderId"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, room)
}

func (s *Server) updateDesignRoom(w http.ResponseWriter, r *http.Request) {
	var req struct {
		roomRequest
		chat.DesignRoomUpdate
	}
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if _, err := s.svc.Chat.UpdateDesignRoom(r.Context(), principal(r), req.RoomID, req.DesignRoomUpdate); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, success{Success: true})
}

func (s *Server) closeDesignRoom(w http.ResponseWriter, r *http.Request) {
	var req roomRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if _, err := s.svc.Chat.CloseDesignRoom(r.Context(), principal(r), req.RoomID); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, success{Success: true})
}

func (s *Server) openBranchRoom(w http.ResponseWriter, r *http.Request) {
	var req chat.OpenRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	res, err := s.svc.Chat.OpenBranchRoom(r.Context(), principal(r), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) customerBranchRooms(w http.ResponseWriter, r *http.Request) {
	rooms, err := s.svc.Chat.CustomerBranchRooms(r.Context(), principal(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"rooms": rooms})
}

func (s *Server) adminBranchRooms(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var branchID *int64
	if v := strings.TrimSpace(q.Get("branchId")); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			s.writeError(w, r, apperr.Invalid("Invalid branchId"))
			return
		}
		branchID = &id
	}
	rooms, err := s.svc.Chat.AdminBranchRooms(r.Context(), principal(r), branchID, q.Get("status"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"rooms": rooms})
}

func (s *Server) branchMessages(w http.ResponseWriter, r *http.Request) {
	msgs, err := s.svc.Chat.BranchMessages(r.Context(), principal(r), r.PathValue("roomId"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": msgs})
}

func (s *Server) sendBranchMessage(w http.ResponseWriter, r *http.Request) {
	var in chat.MessageInput
	if err := decode(r, &in); err != nil {
		s.writeError(w, r, err)
		return
	}
	m, err := s.svc.Chat.SendBranchMessage(r.Context(), principal(r), r.PathValue("roomId"), in)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": m})
}

func (s *Server) markBranchRead(w http.ResponseWriter, r *http.Request) {
	if _, err := s.svc.Chat.MarkBranchRead(r.Context(), principal(r), r.PathValue("roomId")); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, success{Success: true})
}

func (s *Server) closeBranchRoom(w http.ResponseWriter, r *http.Request) {
	if _, err := s.svc.Chat.CloseBranchRoom(r.Context(), principal(r), r.PathValue("roomId")); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, success{Success: true})
}
