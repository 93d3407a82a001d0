package walletserver

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/attaboy/racegame/internal/domain"
	"github.com/attaboy/racegame/internal/provider"
	"github.com/attaboy/racegame/internal/service"
	"github.com/attaboy/racegame/internal/settlement"
	"github.com/go-chi/chi/v5"
)

// Games is the wallet surface the partner callbacks drive.
type Games interface {
	PlayerInfo(ctx context.Context, userID int64) (*service.PlayerInfo, error)
	PlaceRoundBet(ctx context.Context, b service.RoundBet) (int64, error)
	SettleRoundResult(ctx context.Context, rs settlement.RoundSettlement) (int64, error)
}

// Deps holds everything the wallet server routes need.
type Deps struct {
	Games    Games
	Baishun  *provider.BaishunAdapter
	Joy      *provider.JoyAdapter
	ImageDir string
	Now      func() time.Time
	Logger   *slog.Logger
}

const maxCallbackBytes = 1 << 20

// Partner-facing messages.
const (
	msgInvalidContentType = "Invalid content type. Only JSON is supported"
	msgInvalidJSON        = "Invalid JSON data"
	msgMissingParams      = "Missing required parameters"
	msgSignatureMismatch  = "signature mismatch"
	msgNoData             = "No data exists"
	msgBalanceTooLow      = "Balance too low"
	msgInternal           = "Internal server error"
	msgSucceed            = "succeed"
	msgMissingOrderID     = "order_id is required"
	msgMissingTxID        = "transactionId is required"
)

// joyPackage is the package name Joy expects in user info.
const joyPackage = "starmate"

// NewRouter builds the wallet server chi.Router with all partner endpoints.
func NewRouter(d Deps) chi.Router {
	if d.Now == nil {
		d.Now = time.Now
	}

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			d.Logger.Info("wallet-server request",
				"method", r.Method,
				"path", r.URL.Path,
				"remote", r.RemoteAddr)
			next.ServeHTTP(w, r)
		})
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		respond(w, map[string]string{"status": "OK"})
	})

	r.Route("/baishun", func(r chi.Router) {
		r.Post("/getuserinfo", BaishunUserInfoHandler(d))
		r.Post("/getsstoken", BaishunTokenHandler(d, true))
		r.Post("/updatesstoken", BaishunTokenHandler(d, false))
		r.Post("/updatebalance", BaishunBalanceHandler(d))
	})

	// Joy routes need the RSA key; without it the partner is not deployed.
	if d.Joy != nil {
		r.Route("/joy/game", func(r chi.Router) {
			r.Get("/getUserInfo", JoyUserInfoHandler(d))
			r.Post("/submitFlow", JoySubmitFlowHandler(d))
		})
	}

	return r
}

// --- Baishun ---

type baishunResponse struct {
	Code     int    `json:"code"`
	Message  string `json:"message"`
	UniqueID string `json:"unique_id,omitempty"`
	Data     any    `json:"data,omitempty"`
}

func baishunFail(w http.ResponseWriter, msg string) {
	respond(w, baishunResponse{Code: 1, Message: msg})
}

// decodeBaishun enforces a JSON content type and decodes the body. On failure
// the response has been written.
func decodeBaishun(w http.ResponseWriter, r *http.Request, dst any) bool {
	ct := strings.ToLower(r.Header.Get("Content-Type"))
	if !strings.Contains(ct, "application/json") {
		baishunFail(w, msgInvalidContentType)
		return false
	}
	if err := json.NewDecoder(io.LimitReader(r.Body, maxCallbackBytes)).Decode(dst); err != nil {
		baishunFail(w, msgInvalidJSON)
		return false
	}
	return true
}

// BaishunUserInfoHandler handles POST /baishun/getuserinfo.
func BaishunUserInfoHandler(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req provider.BaishunRequest
		if !decodeBaishun(w, r, &req) {
			return
		}
		if req.MissingRequired() {
			baishunFail(w, msgMissingParams)
			return
		}
		if !d.Baishun.VerifySignature(req.SignatureNonce.String(), req.Timestamp.String(), req.Signature.String()) {
			d.Logger.Warn("baishun signature mismatch", "path", r.URL.Path, "user_id", req.UserID.String())
			baishunFail(w, msgSignatureMismatch)
			return
		}

		info, err := d.Games.PlayerInfo(r.Context(), req.UserID.Int())
		if err != nil {
			baishunFail(w, failureMessage(d.Logger, "baishun user info", err))
			return
		}

		respond(w, baishunResponse{
			Code:     0,
			Message:  msgSucceed,
			UniqueID: provider.MakeUniqueID(d.Now()),
			Data: map[string]any{
				"user_id":     req.UserID.String(),
				"user_name":   info.Account.Name,
				"user_avatar": info.Account.AvatarURL(d.ImageDir),
				"balance":     info.Spendable,
			},
		})
	}
}

// BaishunTokenHandler handles POST /baishun/getsstoken and, with issue set to
// false, POST /baishun/updatesstoken which only acknowledges.
func BaishunTokenHandler(d Deps, issue bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req provider.BaishunTokenRequest
		if !decodeBaishun(w, r, &req) {
			return
		}
		if req.MissingRequired() {
			baishunFail(w, msgMissingParams)
			return
		}
		if !issue {
			respond(w, baishunResponse{Code: 0, Message: msgSucceed})
			return
		}

		respond(w, baishunResponse{
			Code:     0,
			Message:  msgSucceed,
			UniqueID: provider.MakeUniqueID(d.Now()),
			Data: map[string]any{
				"ss_token":    d.Baishun.SSToken(req.AppID.String(), req.UserID.String(), req.Code.String()),
				"expire_date": provider.SSTokenExpiry(req.Timestamp.Int()),
			},
		})
	}
}

// BaishunBalanceHandler handles POST /baishun/updatebalance. diff_msg "bet"
// debits the stake, "result" settles the round.
func BaishunBalanceHandler(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req provider.BaishunRequest
		if !decodeBaishun(w, r, &req) {
			return
		}
		if req.MissingRequired() {
			baishunFail(w, msgMissingParams)
			return
		}
		if !d.Baishun.VerifySignature(req.SignatureNonce.String(), req.Timestamp.String(), req.Signature.String()) {
			d.Logger.Warn("baishun signature mismatch", "path", r.URL.Path, "user_id", req.UserID.String())
			baishunFail(w, msgSignatureMismatch)
			return
		}

		diffMsg := req.DiffMsg.String()
		if diffMsg != "bet" && diffMsg != "result" {
			baishunFail(w, "not allowed diff msg")
			return
		}
		gameID := int(req.GameID.Int())
		if _, ok := domain.LookupGame(domain.IntegrationBaishun, gameID); !ok {
			baishunFail(w, "Invalid gameId")
			return
		}

		// Results settle under the order id; without it a retry would credit twice.
		if diffMsg == "result" && req.OrderID.String() == "" {
			baishunFail(w, msgMissingOrderID)
			return
		}

		userID := req.UserID.Int()
		coin := req.CurrencyDiff.Int()
		mv := domain.Movement{
			OrderID: req.OrderID.String(),
			Coin:    abs(coin),
			DiffMsg: diffMsg,
			RoomID:  req.RoomID.String(),
		}

		var (
			points int64
			err    error
		)
		if diffMsg == "bet" {
			points, err = d.Games.PlaceRoundBet(r.Context(), service.RoundBet{
				Integration: domain.IntegrationBaishun,
				UserID:      userID,
				GameID:      gameID,
				RoundID:     req.RoundID.String(),
				RoomID:      req.RoomID.String(),
				Amount:      abs(coin),
				Movement:    mv,
			})
		} else {
			points, err = d.Games.SettleRoundResult(r.Context(), settlement.RoundSettlement{
				Integration: domain.IntegrationBaishun,
				UserID:      userID,
				GameID:      gameID,
				RoundID:     req.RoundID.String(),
				RoomID:      req.RoomID.String(),
				Reference:   req.OrderID.String(),
				Coin:        coin,
				Movement:    mv,
			})
		}
		if err != nil {
			baishunFail(w, failureMessage(d.Logger, "baishun "+diffMsg, err))
			return
		}

		respond(w, baishunResponse{
			Code:     0,
			Message:  msgSucceed,
			UniqueID: provider.MakeUniqueID(d.Now()),
			Data:     map[string]int64{"currency_balance": points},
		})
	}
}

// --- Joy ---

type joyResponse struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
	Data any    `json:"data,omitempty"`
}

func joyFail(w http.ResponseWriter, msg string) {
	respond(w, joyResponse{Code: 1, Msg: msg})
}

// JoyUserInfoHandler handles GET /joy/game/getUserInfo.
func JoyUserInfoHandler(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, _, ok := provider.ParseJoyAuthorization(r.Header.Get("Authorization"))
		if !ok {
			joyFail(w, msgMissingParams)
			return
		}

		info, err := d.Games.PlayerInfo(r.Context(), userID)
		if err != nil {
			joyFail(w, failureMessage(d.Logger, "joy user info", err))
			return
		}

		respond(w, joyResponse{
			Code: 0,
			Msg:  msgSucceed,
			Data: map[string]any{
				"userId":         info.Account.ID,
				"pkgName":        joyPackage,
				"nickname":       info.Account.Name,
				"avatarUrl":      info.Account.AvatarURL(d.ImageDir),
				"availableCoins": info.Spendable,
				"level":          info.Account.RichLevel,
			},
		})
	}
}

// JoySubmitFlowHandler handles POST /joy/game/submitFlow. The body carries an
// RSA envelope; flow type 1 is a bet, type 2 a result.
func JoySubmitFlowHandler(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, gameID64, ok := provider.ParseJoyAuthorization(r.Header.Get("Authorization"))
		if !ok {
			joyFail(w, msgMissingParams)
			return
		}
		gameID := int(gameID64)
		if _, ok := domain.LookupGame(domain.IntegrationJoy, gameID); !ok {
			joyFail(w, "Invalid gameId")
			return
		}

		var body struct {
			Data string `json:"data"`
		}
		if err := json.NewDecoder(io.LimitReader(r.Body, maxCallbackBytes)).Decode(&body); err != nil || strings.TrimSpace(body.Data) == "" {
			joyFail(w, msgMissingParams)
			return
		}
		flow, err := d.Joy.DecryptFlow(body.Data)
		if err != nil {
			d.Logger.Warn("joy flow rejected", "user_id", userID, "error", err)
			joyFail(w, msgInvalidJSON)
			return
		}

		flowType := int(flow.Type.Int())
		if flowType == provider.JoyFlowResult && flow.TransactionID.String() == "" {
			joyFail(w, msgMissingTxID)
			return
		}
		coin := flow.Coins.Int()
		mv := domain.Movement{
			TransactionID: flow.TransactionID.String(),
			Coin:          coin,
			Type:          flowType,
			RoomID:        flow.RoomID.String(),
		}

		switch flowType {
		case provider.JoyFlowBet:
			_, err = d.Games.PlaceRoundBet(r.Context(), service.RoundBet{
				Integration: domain.IntegrationJoy,
				UserID:      userID,
				GameID:      gameID,
				RoundID:     flow.RoundID.String(),
				RoomID:      flow.RoomID.String(),
				Amount:      coin,
				Movement:    mv,
			})
		case provider.JoyFlowResult:
			_, err = d.Games.SettleRoundResult(r.Context(), settlement.RoundSettlement{
				Integration: domain.IntegrationJoy,
				UserID:      userID,
				GameID:      gameID,
				RoundID:     flow.RoundID.String(),
				RoomID:      flow.RoomID.String(),
				Reference:   flow.TransactionID.String(),
				Coin:        coin,
				Movement:    mv,
			})
		default:
			joyFail(w, "not allowed type")
			return
		}
		if err != nil {
			joyFail(w, failureMessage(d.Logger, "joy flow", err))
			return
		}

		respond(w, joyResponse{Code: 0, Msg: msgSucceed, Data: struct{}{}})
	}
}

// --- shared ---

// failureMessage maps a service error to the partner message. Unexpected
// errors are logged and masked.
func failureMessage(logger *slog.Logger, op string, err error) string {
	if appErr, ok := domain.AsAppError(err); ok {
		switch appErr.Code {
		case domain.CodeValidation:
			return appErr.Message
		case domain.CodeInsufficientBalance:
			return msgBalanceTooLow
		case domain.CodeNotFound:
			return msgNoData
		}
	}
	logger.Error(op+" failed", "error", err)
	return msgInternal
}

// respond always answers 200; partners read the code field.
func respond(w http.ResponseWriter, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(body)
}

func abs(n int64) int64 {
	if n < 0 {
		return -n
	}
	return n
}
