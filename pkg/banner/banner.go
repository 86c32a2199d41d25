package banner

import (
	"fmt"

	"cardstate/pkg/config"
)

const banner = `
 ██████╗ █████╗ ██████╗ ██████╗ ███████╗████████╗ █████╗ ████████╗███████╗
██╔════╝██╔══██╗██╔══██╗██╔══██╗██╔════╝╚══██╔══╝██╔══██╗╚══██╔══╝██╔════╝
██║     ███████║██████╔╝██║  ██║███████╗   ██║   ███████║   ██║   █████╗
██║     ██╔══██║██╔══██╗██║  ██║╚════██║   ██║   ██╔══██║   ██║   ██╔══╝
╚██████╗██║  ██║██║  ██║██████╔╝███████║   ██║   ██║  ██║   ██║   ███████╗
 ╚═════╝╚═╝  ╚═╝╚═╝  ╚═╝╚═════╝ ╚══════╝   ╚═╝   ╚═╝  ╚═╝   ╚═╝   ╚══════╝
`

// Print writes the startup banner plus a short production readiness
// rundown of the effective config.
func Print(cfg *config.Config, version string) {
	fmt.Print(banner)
	fmt.Println("== Config =====================================================")
	fmt.Printf("Reads:     %s\n", cfg.Addr())
	fmt.Printf("Mutations: %s\n", cfg.Server.MutationsAddr)
	fmt.Printf("DB Path:   %s\n", cfg.Storage.DBPath)
	if version != "" {
		fmt.Printf("Version:   %s\n", version)
	}

	fmt.Println("\n== Examples ===================================================")
	fmt.Printf("curl -X POST 'http://%s/v1/cards/c1/messages' -d '{\"content\":\"hello\"}'\n", cfg.Server.MutationsAddr)
	fmt.Printf("curl 'http://%s/v1/cards/c1/messages?limit=10'\n", cfg.Addr())

	fmt.Println("\n== Production? ================================================")
	if n := len(cfg.Security.APIKeys.Backend); n > 0 {
		fmt.Printf("- Backend API keys: OK (%d)\n", n)
	} else {
		fmt.Println("- Backend API keys: MISSING (service runs open)")
	}
	if n := len(cfg.Security.APIKeys.Frontend); n > 0 {
		fmt.Printf("- Frontend API keys: OK (%d)\n", n)
	} else {
		fmt.Println("- Frontend API keys: MISSING (required for client access)")
	}
	if cfg.Server.TLS.CertFile != "" && cfg.Server.TLS.KeyFile != "" {
		fmt.Println("- TLS: configured")
	} else {
		fmt.Println("- TLS: unconfigured")
	}
	if cfg.Retention.Enabled {
		fmt.Printf("- Retention: enabled (cron=%s max_age=%s)\n", cfg.Retention.Cron, cfg.Retention.MaxAge.Duration())
	} else {
		fmt.Println("- Retention: disabled")
	}

	fmt.Println("\n== Logs: ======================================================")
}
