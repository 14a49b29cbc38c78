package response

// ErrCode is a typed error code enum for consistent API error identification.
type ErrCode string

const (
	// ─── Authentication ────────────────────────────────────────────────
	ErrInvalidCredentials ErrCode = "INVALID_CREDENTIALS"
	ErrLoginRequired      ErrCode = "LOGIN_REQUIRED"
	ErrOfflineLogin       ErrCode = "OFFLINE_LOGIN_UNAVAILABLE"

	// ─── Validation ────────────────────────────────────────────────────
	ErrValidation     ErrCode = "VALIDATION_ERROR"
	ErrInvalidID      ErrCode = "INVALID_ID"
	ErrInvalidPayload ErrCode = "INVALID_PAYLOAD"

	// ─── Resources ─────────────────────────────────────────────────────
	ErrNotFound ErrCode = "NOT_FOUND"

	// ─── Assessment-specific ───────────────────────────────────────────
	ErrNoActiveAttempt ErrCode = "NO_ACTIVE_ATTEMPT"
	ErrTimeIntegrity   ErrCode = "TIME_MANIPULATION_DETECTED"

	// ─── Sync / storage ────────────────────────────────────────────────
	ErrStorage ErrCode = "STORAGE_ERROR"
	ErrOffline ErrCode = "OFFLINE"

	// ─── Media ─────────────────────────────────────────────────────────
	ErrFileRequired ErrCode = "FILE_REQUIRED"
	ErrFileTooLarge ErrCode = "FILE_TOO_LARGE"

	// ─── Server ────────────────────────────────────────────────────────
	ErrInternal ErrCode = "INTERNAL_ERROR"
)

// GetMessage returns a human-readable message for a given error code.
func GetMessage(code ErrCode) string {
	switch code {
	// ─── Authentication ────────────────────────────────────────────────
	case ErrInvalidCredentials:
		return "Email atau kata sandi salah."
	case ErrLoginRequired:
		return "Silakan login terlebih dahulu."
	case ErrOfflineLogin:
		return "Login offline tidak tersedia. Hubungkan perangkat ke internet dan login ulang."

	// ─── Validation ────────────────────────────────────────────────────
	case ErrValidation:
		return "Validasi gagal. Silakan periksa masukan Anda."
	case ErrInvalidID:
		return "Format ID tidak valid."
	case ErrInvalidPayload:
		return "Payload permintaan tidak valid."

	// ─── Resources ─────────────────────────────────────────────────────
	case ErrNotFound:
		return "Data tidak ditemukan."

	// ─── Assessment-specific ───────────────────────────────────────────
	case ErrNoActiveAttempt:
		return "Tidak ada pengerjaan kuis yang sedang berlangsung."
	case ErrTimeIntegrity:
		return "Manipulasi waktu terdeteksi. Sesuaikan jam perangkat Anda dan coba lagi."

	// ─── Sync / storage ────────────────────────────────────────────────
	case ErrStorage:
		return "Penyimpanan lokal bermasalah. Operasi dibatalkan."
	case ErrOffline:
		return "Perangkat sedang offline."

	// ─── Media ─────────────────────────────────────────────────────────
	case ErrFileRequired:
		return "Unggah file diperlukan."
	case ErrFileTooLarge:
		return "Ukuran file melebihi batas."

	// ─── Server ────────────────────────────────────────────────────────
	case ErrInternal:
		return "Terjadi kesalahan internal."
	default:
		return "Terjadi kesalahan yang tidak terduga."
	}
}
