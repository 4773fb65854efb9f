package social

import "strings"

// Platform identifica una red social soportada.
type Platform string

const (
	YouTube   Platform = "youtube"
	Instagram Platform = "instagram"
	Twitter   Platform = "twitter"
	TikTok    Platform = "tiktok"
	Pinterest Platform = "pinterest"
	Facebook  Platform = "facebook"
)

// AllPlatforms en orden estable (UI, listados, métricas).
var AllPlatforms = []Platform{YouTube, Instagram, Twitter, TikTok, Pinterest, Facebook}

// ParsePlatform normaliza el nombre (case-insensitive, "x" = twitter).
func ParsePlatform(raw string) (Platform, error) {
	s := strings.ToLower(strings.TrimSpace(raw))
	if s == "x" {
		return Twitter, nil
	}
	for _, p := range AllPlatforms {
		if string(p) == s {
			return p, nil
		}
	}
	return "", &Error{Kind: KindUnknownPlatform, Op: "ParsePlatform", Detail: "unknown platform " + quoteShort(raw)}
}

func (p Platform) String() string { return string(p) }

// EnvPrefix es el prefijo de variables de entorno de la plataforma (YOUTUBE_CLIENT_ID, ...).
func (p Platform) EnvPrefix() string { return strings.ToUpper(string(p)) }

func quoteShort(s string) string {
	if len(s) > 32 {
		s = s[:32] + "..."
	}
	return "\"" + s + "\""
}
