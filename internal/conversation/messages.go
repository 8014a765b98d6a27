package conversation

import (
	"fmt"
	"strings"
	"time"

	"github.com/m3rciful/xlbot/core/telegram/format"
	"github.com/m3rciful/xlbot/internal/models"
)

const (
	msgWelcome = "🤖 *Selamat datang di DorXL Bot!*\n\n" +
		"Fitur:\n" +
		"• Login MyXL\n" +
		"• Cek saldo & masa aktif\n" +
		"• Beli paket\n\n" +
		"Perintah:\n" +
		"/login - Login ke MyXL\n" +
		"/menu - Buka menu utama\n" +
		"/help - Bantuan\n\n" +
		"Untuk mulai, silakan login dengan /login"
	msgHelp = "🔧 *Bantuan Bot*\n\n" +
		"1) /login kemudian masukkan nomor XL\n" +
		"2) Masukkan OTP dari SMS\n" +
		"3) Setelah login, gunakan /menu untuk akses fitur\n\n" +
		"👉 Gunakan tombol untuk navigasi."
	msgLoginPrompt   = "📱 *Login ke MyXL*\n\nMasukkan nomor XL prabayar Anda (format: 6281234567890)\n\nKetik /cancel untuk batal"
	msgReloginPrompt = "📱 *Login ke MyXL*\n\nSilakan masukkan nomor XL Prabayar Anda:\nFormat: 6281234567890"
	msgNotLoggedIn   = "❌ Anda belum login!\nSilakan /login"
	msgStartFirst    = "Silakan mulai dengan /start terlebih dahulu"
	msgUseMenu       = "Gunakan /menu untuk navigasi"
	msgCancelled     = "❌ Dibatalkan"
	msgLoggedOut     = "✅ Anda telah logout."
	msgSessionExpire = "❌ Sesi kadaluarsa. Silakan /login ulang."

	msgInvalidPhone = "❌ Nomor tidak valid! Format: 6281234567890"
	msgInvalidOtp   = "❌ Kode OTP tidak valid! Masukkan 6 digit angka:"
	msgOtpSent      = "✅ OTP dikirim!\n\nMasukkan kode OTP 6 digit:"
	msgOtpSendFail  = "❌ Gagal mengirim OTP.\nCoba /login lagi"
	msgOtpWrong     = "❌ OTP salah/expired. /login ulang"

	msgMenuFailed     = "❌ Terjadi kesalahan saat mengambil menu akun."
	msgQuotaFailed    = "❌ Terjadi kesalahan saat mengambil data kuota"
	msgNoQuota        = "ℹ️ Tidak ada kuota aktif."
	msgPackagesFailed = "❌ Terjadi kesalahan saat mengambil data paket"
	msgNoPackages     = "❌ Tidak ada paket tersedia"
	msgPackageList    = "📦 *Paket Tersedia:*\n\nPilih paket:"
	msgNotFound       = "❌ Paket tidak ditemukan"
	msgDetailFailed   = "❌ Gagal mengambil detail paket"
	msgPurchaseError  = "❌ Terjadi kesalahan saat pembelian paket"

	msgBalanceInsufficient = "Pulsa tidak cukup untuk membeli paket ini."
	msgPurchaseFailedPlain = "Pembelian gagal"

	unknownPackageName = "Unknown"
	expiryLayout       = "2006-01-02 15:04:05"
)

func alreadyLoggedIn(phone string) string {
	return fmt.Sprintf("Anda sudah login sebagai %s\n\nIngin login ulang?", format.MD(phone))
}

func accountSummary(p models.Profile, b models.Balance) string {
	expiry := "-"
	if !b.ExpiredAt.IsZero() {
		expiry = b.ExpiredAt.In(time.Local).Format(expiryLayout)
	}
	return "🏠 *Menu Utama*\n\n" +
		"💰 *Informasi Akun*\n" +
		fmt.Sprintf("📱 Nomor: `%s`\n", p.MSISDN) +
		fmt.Sprintf("💵 Pulsa: %s\n", format.Rupiah(b.Remaining)) +
		fmt.Sprintf("⏰ Masa Aktif: %s\n\n", expiry) +
		"👉 Pilih menu di bawah:"
}

func quotaList(quotas []models.Quota) string {
	if len(quotas) == 0 {
		return msgNoQuota
	}
	lines := []string{"📊 *Kuota Aktif:*\n"}
	for i, q := range quotas {
		name := q.Name
		if name == "" {
			name = "N/A"
		}
		lines = append(lines, fmt.Sprintf("%d. %s\n   ➡️ %s / %s",
			i+1, format.MD(name), format.Grouped(q.Remaining), format.Grouped(q.Total)))
	}
	return strings.Join(lines, "\n")
}

func packageLabel(p models.PackageSummary) string {
	return fmt.Sprintf("📦 %s - %s", p.Name, format.Rupiah(p.Price))
}

func packageDetail(d models.PackageDetail) string {
	return "📦 *Detail Paket*\n\n" +
		fmt.Sprintf("📋 Nama: %s\n", format.MD(d.Title())) +
		fmt.Sprintf("💰 Harga: %s\n\n", format.Rupiah(d.Price)) +
		"⚠️ Pastikan pulsa mencukupi sebelum membeli!\n\n" +
		"Lanjutkan pembelian?"
}

func purchaseSucceeded(name string, price int64) string {
	return fmt.Sprintf("✅ *Paket berhasil dibeli!*\n\n📦 %s\n💰 %s\n\nSilakan cek aplikasi MyXL.",
		format.MD(name), format.Rupiah(price))
}

func purchaseFailed(human string) string {
	return "❌ *Pembelian gagal!*\n\n" + format.MD(human)
}

// failureMessage maps a partner reason code to the text shown to the user.
func failureMessage(reasonCode string) string {
	switch reasonCode {
	case models.ReasonBalanceInsufficient:
		return msgBalanceInsufficient
	case "":
		return msgPurchaseFailedPlain
	default:
		return reasonCode
	}
}
