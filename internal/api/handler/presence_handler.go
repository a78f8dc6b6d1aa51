package handler

import (
	"Relay/internal/api/dto"
	"Relay/internal/pkg/response"
	"Relay/internal/realtime"
	"Relay/internal/service"
	"strconv"

	"github.com/gin-gonic/gin"
)

type PresenceHandler struct {
	presence *realtime.Presence
}

func NewPresenceHandler(presence *realtime.Presence) *PresenceHandler {
	return &PresenceHandler{presence: presence}
}

// GetPresence 查询指定用户的在线状态与在线设备
func (s *PresenceHandler) GetPresence(c *gin.Context) {
	userID, err := strconv.ParseUint(c.Param("userId"), 10, 64)
	if err != nil {
		response.Error(c, service.ErrParamInvalid)
		return
	}
	devices, err := s.presence.ListDevices(c, userID)
	if err != nil {
		response.Error(c, service.UnExpectedError)
		return
	}
	response.Success(c, &dto.PresenceDTO{
		UserID:  userID,
		Online:  len(devices) > 0,
		Devices: devices,
	})
}
