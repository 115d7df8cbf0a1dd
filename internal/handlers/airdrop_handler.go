package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"airdrop-backend/internal/dto"
	"airdrop-backend/internal/merkle"
	"airdrop-backend/internal/services"
	"airdrop-backend/internal/types"
	"airdrop-backend/internal/utils"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// AirdropService what the handler needs from the status service
type AirdropService interface {
	GetStatus(ctx context.Context, req services.StatusRequest) *services.AirdropStatus
	GetProof(ctx context.Context, chainID int64, token, address common.Address) (*services.RecipientProof, error)
	Publish(ctx context.Context, req services.PublishRequest) (*services.PublishResult, error)
}

// AirdropHandler airdrop status, proof and publish endpoints
type AirdropHandler struct {
	service AirdropService
	logger  *logrus.Logger
}

// NewAirdropHandler creates the handler
func NewAirdropHandler(service AirdropService, logger *logrus.Logger) *AirdropHandler {
	return &AirdropHandler{service: service, logger: logger}
}

// GetStatusHandler GET /api/v1/airdrops/:chainId/:token/status?treasury=0x...
func (h *AirdropHandler) GetStatusHandler(c *gin.Context) {
	chainID, token, ok := h.airdropParams(c)
	if !ok {
		return
	}

	treasury := c.Query("treasury")
	if treasury != "" && !utils.IsEvmAddress(treasury) {
		respondError(c, http.StatusBadRequest, "invalid treasury address", "INVALID_TREASURY")
		return
	}

	status := h.service.GetStatus(c.Request.Context(), services.StatusRequest{
		ChainID:  chainID,
		Token:    token,
		Treasury: treasury,
	})

	code := http.StatusOK
	switch status.Reason {
	case services.ReasonNotConfigured:
		code = http.StatusNotFound
	case services.ReasonUnavailable:
		code = http.StatusServiceUnavailable
	}
	if code != http.StatusOK {
		h.logger.WithFields(logrus.Fields{
			"request_id": c.GetString("request_id"),
			"chain_id":   chainID,
			"token":      token.Hex(),
			"reason":     status.Reason,
		}).Info("Airdrop status not served")
	}
	c.JSON(code, dto.NewAirdropStatusResponse(status))
}

// GetProofHandler GET /api/v1/airdrops/:chainId/:token/proofs/:address
func (h *AirdropHandler) GetProofHandler(c *gin.Context) {
	chainID, token, ok := h.airdropParams(c)
	if !ok {
		return
	}
	address, err := utils.ParseAddress(c.Param("address"))
	if err != nil {
		respondError(c, http.StatusBadRequest, err.Error(), "INVALID_ADDRESS")
		return
	}

	proof, err := h.service.GetProof(c.Request.Context(), chainID, token, address)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, dto.NewRecipientProofResponse(proof))
	case errors.Is(err, services.ErrRecipientNotFound):
		respondError(c, http.StatusNotFound, err.Error(), "RECIPIENT_NOT_FOUND")
	case errors.Is(err, services.ErrAirdropNotConfigured):
		respondError(c, http.StatusNotFound, err.Error(), "NOT_CONFIGURED")
	case errors.Is(err, services.ErrAirdropUnavailable):
		h.logFailure(c, "proof lookup", err)
		respondError(c, http.StatusServiceUnavailable, services.ErrAirdropUnavailable.Error(), "UNAVAILABLE")
	default:
		h.logFailure(c, "proof lookup", err)
		respondError(c, http.StatusInternalServerError, "failed to build proof", "INTERNAL_ERROR")
	}
}

// PublishHandler POST /api/admin/airdrops
func (h *AirdropHandler) PublishHandler(c *gin.Context) {
	var req dto.PublishAirdropRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, fmt.Sprintf("Invalid request: %v", err), "INVALID_REQUEST")
		return
	}

	token, err := utils.ParseAddress(req.Token)
	if err != nil {
		respondError(c, http.StatusBadRequest, err.Error(), "INVALID_TOKEN_ADDRESS")
		return
	}

	leaves := make([]merkle.Leaf, 0, len(req.Recipients))
	for i, r := range req.Recipients {
		address, err := utils.ParseAddress(r.Address)
		if err != nil {
			respondError(c, http.StatusBadRequest, fmt.Sprintf("recipient %d: %v", i, err), "INVALID_RECIPIENT")
			return
		}
		amount, err := utils.ParseAmount(r.Amount)
		if err != nil {
			respondError(c, http.StatusBadRequest, fmt.Sprintf("recipient %d: %v", i, err), "INVALID_RECIPIENT")
			return
		}
		leaves = append(leaves, merkle.Leaf{Address: address, Amount: amount})
	}

	var metadata *types.CommitmentMetadata
	if req.LockupEndTime > 0 {
		duration := req.LockupDuration
		if duration <= 0 {
			duration = services.DefaultLockupDuration
		}
		metadata = &types.CommitmentMetadata{LockupEndTime: req.LockupEndTime, LockupDuration: duration}
	}

	result, err := h.service.Publish(c.Request.Context(), services.PublishRequest{
		ChainID:    req.ChainID,
		Token:      token,
		Recipients: leaves,
		Metadata:   metadata,
	})
	switch {
	case err == nil:
		h.logger.WithFields(logrus.Fields{
			"request_id": c.GetString("request_id"),
			"admin":      c.GetString("admin_username"),
			"chain_id":   req.ChainID,
			"token":      token.Hex(),
			"cid":        result.ContentID,
		}).Info("Airdrop published by admin")
		c.JSON(http.StatusCreated, dto.PublishAirdropResponse{
			Success:    true,
			ContentID:  string(result.ContentID),
			MerkleRoot: result.MerkleRoot.Hex(),
			Recipients: result.Recipients,
		})
	case errors.Is(err, services.ErrDuplicateRecipient),
		errors.Is(err, services.ErrInvalidChainID),
		errors.Is(err, merkle.ErrInvalidLeaf),
		errors.Is(err, merkle.ErrEmptyTree):
		respondError(c, http.StatusBadRequest, err.Error(), "INVALID_DISTRIBUTION")
	case errors.Is(err, services.ErrAirdropNotConfigured), errors.Is(err, services.ErrAirdropUnavailable):
		h.logFailure(c, "publish", err)
		respondError(c, http.StatusServiceUnavailable, "tree store unavailable", "UNAVAILABLE")
	default:
		h.logFailure(c, "publish", err)
		respondError(c, http.StatusInternalServerError, "failed to publish airdrop", "INTERNAL_ERROR")
	}
}

func (h *AirdropHandler) airdropParams(c *gin.Context) (int64, common.Address, bool) {
	chainID, err := strconv.ParseInt(c.Param("chainId"), 10, 64)
	if err != nil || chainID <= 0 {
		respondError(c, http.StatusBadRequest, "invalid chain id", "INVALID_CHAIN_ID")
		return 0, common.Address{}, false
	}
	token, err := utils.ParseAddress(c.Param("token"))
	if err != nil {
		respondError(c, http.StatusBadRequest, err.Error(), "INVALID_TOKEN_ADDRESS")
		return 0, common.Address{}, false
	}
	return chainID, token, true
}

func (h *AirdropHandler) logFailure(c *gin.Context, op string, err error) {
	h.logger.WithFields(logrus.Fields{
		"request_id": c.GetString("request_id"),
		"path":       c.Request.URL.Path,
		"error":      err.Error(),
	}).Warnf("Airdrop %s failed", op)
}

func respondError(c *gin.Context, status int, message, code string) {
	c.JSON(status, dto.ErrorResponse{Success: false, Error: message, Code: code})
}
