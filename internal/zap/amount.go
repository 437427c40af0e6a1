package zap

import (
	"math"
	"strconv"
	"strings"
)

// satsPerBTC is the number of satoshis in one whole bitcoin.
const satsPerBTC = 100_000_000

// Resolve extracts a satoshi amount from a receipt using a strict precedence:
// the receipt-level amount tag, then the bolt11 invoice HRP, then the amount
// tag of the zap request description. Negative, absent or malformed values
// resolve to SourceUnknown; values above maxSats are clamped down and flagged.
// Deterministic, no side effects.
func Resolve(r *Receipt, maxSats int64) Resolved {
	if r.AmountMsat != nil && *r.AmountMsat >= 0 {
		return clampSats(*r.AmountMsat/1000, SourceReceiptAmount, maxSats)
	}
	if r.Invoice != "" {
		if sats, ok := hrpSats(r.Invoice); ok {
			return clampSats(sats, SourceInvoiceHRP, maxSats)
		}
	}
	if r.DescriptionAmountMsat != nil && *r.DescriptionAmountMsat >= 0 {
		return clampSats(*r.DescriptionAmountMsat/1000, SourceDescriptionTag, maxSats)
	}
	return Resolved{Source: SourceUnknown}
}

func clampSats(sats int64, src Source, maxSats int64) Resolved {
	if sats < 0 {
		return Resolved{Source: SourceUnknown}
	}
	if sats > maxSats {
		return Resolved{Sats: maxSats, Source: src, Clamped: true}
	}
	return Resolved{Sats: sats, Source: src}
}

// hrpSats decodes the human-readable amount prefix of a bolt11 invoice:
// "ln", a currency of at least two letters, an optional numeral with an
// optional one-letter multiplier (m/u/n/p), then the "1" separator.
// A decimal point is allowed only when no multiplier follows. Amountless or
// malformed invoices return ok=false so the caller can fall through.
func hrpSats(invoice string) (int64, bool) {
	s := strings.ToLower(strings.TrimSpace(invoice))
	if !strings.HasPrefix(s, "ln") {
		return 0, false
	}

	// currency letters
	i := 2
	for i < len(s) && s[i] >= 'a' && s[i] <= 'z' {
		i++
	}
	if i < 4 {
		return 0, false
	}

	// numeric run, possibly containing the separator itself
	j := i
	for j < len(s) && (isDigit(s[j]) || s[j] == '.') {
		j++
	}
	run := s[i:j]
	if run == "" {
		// amountless invoice
		return 0, false
	}

	if j+1 < len(s) && isMultiplier(s[j]) && s[j+1] == '1' {
		// decimals are only valid without a multiplier
		if strings.ContainsRune(run, '.') {
			return 0, false
		}
		n, err := strconv.ParseInt(run, 10, 64)
		if err != nil {
			return 0, false
		}
		return multiplierSats(n, s[j])
	}

	// No multiplier: the amount is denominated in whole bitcoin and the
	// separator is the last '1' of the numeric run.
	cut := strings.LastIndexByte(run, '1')
	if cut <= 0 {
		return 0, false
	}
	return btcSats(run[:cut])
}

// multiplierSats converts a numeral with its multiplier into satoshis,
// truncating fractional satoshis for the n and p cases.
func multiplierSats(n int64, mult byte) (int64, bool) {
	switch mult {
	case 'm': // milli-bitcoin
		if n > math.MaxInt64/100_000 {
			return 0, false
		}
		return n * 100_000, true
	case 'u': // micro-bitcoin
		if n > math.MaxInt64/100 {
			return 0, false
		}
		return n * 100, true
	case 'n': // nano-bitcoin, 0.1 sat each
		return n / 10, true
	case 'p': // pico-bitcoin, 0.0001 sat each
		return n / 10_000, true
	}
	return 0, false
}

// btcSats converts a decimal bitcoin numeral ("0.0001", "2") into satoshis,
// truncating anything below one satoshi.
func btcSats(num string) (int64, bool) {
	intPart, fracPart, hasDot := strings.Cut(num, ".")
	if intPart == "" || (hasDot && fracPart == "") {
		return 0, false
	}
	whole, err := strconv.ParseInt(intPart, 10, 64)
	if err != nil {
		return 0, false
	}
	if whole > math.MaxInt64/satsPerBTC {
		return 0, false
	}
	sats := whole * satsPerBTC

	if len(fracPart) > 8 {
		fracPart = fracPart[:8]
	}
	if fracPart != "" {
		frac, err := strconv.ParseInt(fracPart, 10, 64)
		if err != nil {
			return 0, false
		}
		for k := len(fracPart); k < 8; k++ {
			frac *= 10
		}
		sats += frac
	}
	return sats, true
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

func isMultiplier(c byte) bool {
	return c == 'm' || c == 'u' || c == 'n' || c == 'p'
}
