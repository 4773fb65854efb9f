package main

import (
	"fmt"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/spf13/cobra"
)

func envOr(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cl := &client{
		BaseURL:   envOr("STARLING_API_URL", "http://localhost:8080"),
		Token:     os.Getenv("STARLING_TOKEN"),
		OutFormat: envOr("STARLING_OUT", "text"),
		HTTP:      &http.Client{Timeout: 30 * time.Second},
	}

	root := &cobra.Command{
		Use:           "starling",
		Short:         "CLI para la API de StarlingPost",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringVar(&cl.BaseURL, "api-url", cl.BaseURL, "URL base de la API (env STARLING_API_URL)")
	root.PersistentFlags().StringVar(&cl.Token, "token", cl.Token, "Bearer token del IdP (env STARLING_TOKEN)")
	root.PersistentFlags().StringVar(&cl.OutFormat, "out", cl.OutFormat, "Formato de salida: json|text")

	root.AddCommand(adminCmd(cl), accountsCmd(cl), metricsCmd(cl))
	return root
}

func requireToken(cl *client) error {
	if cl.Token == "" {
		return fmt.Errorf("falta token (flag --token o env STARLING_TOKEN)")
	}
	return nil
}

func adminCmd(cl *client) *cobra.Command {
	cmd := &cobra.Command{Use: "admin", Short: "Operaciones administrativas"}

	var uid, secret string
	var isAdmin bool
	setup := &cobra.Command{
		Use:   "setup",
		Short: "Bootstrap del primer admin (POST /admin/setup)",
		RunE: func(c *cobra.Command, _ []string) error {
			if secret == "" {
				return fmt.Errorf("--secret es requerido (o env ADMIN_SETUP_SECRET)")
			}
			return cl.call(c.OutOrStdout(), http.MethodPost, "/admin/setup",
				map[string]any{"uid": uid, "isAdmin": isAdmin},
				map[string]string{"x-admin-setup-secret": secret})
		},
	}
	setup.Flags().StringVar(&uid, "uid", "", "uid del usuario en el IdP")
	setup.Flags().BoolVar(&isAdmin, "admin", true, "valor del claim admin")
	setup.Flags().StringVar(&secret, "secret", os.Getenv("ADMIN_SETUP_SECRET"), "secreto de setup")

	var roleUID, role string
	setRole := &cobra.Command{
		Use:   "set-role",
		Short: "Fijar el rol de un usuario (POST /v1/admin/claims)",
		RunE: func(c *cobra.Command, _ []string) error {
			if err := requireToken(cl); err != nil {
				return err
			}
			if roleUID == "" || role == "" {
				return fmt.Errorf("--uid y --role son requeridos")
			}
			return cl.call(c.OutOrStdout(), http.MethodPost, "/v1/admin/claims",
				map[string]string{"uid": roleUID, "role": role}, nil)
		},
	}
	setRole.Flags().StringVar(&roleUID, "uid", "", "uid del usuario")
	setRole.Flags().StringVar(&role, "role", "", "admin|editor|viewer")

	cmd.AddCommand(setup, setRole)
	return cmd
}

func accountsCmd(cl *client) *cobra.Command {
	cmd := &cobra.Command{Use: "accounts", Short: "Cuentas vinculadas del usuario del token"}

	list := &cobra.Command{
		Use:   "list",
		Short: "Listar cuentas vinculadas",
		RunE: func(c *cobra.Command, _ []string) error {
			if err := requireToken(cl); err != nil {
				return err
			}
			return cl.call(c.OutOrStdout(), http.MethodGet, "/v1/accounts", nil, nil)
		},
	}

	unlink := &cobra.Command{
		Use:   "unlink <platform> <accountId>",
		Short: "Desvincular una cuenta",
		Args:  cobra.ExactArgs(2),
		RunE: func(c *cobra.Command, args []string) error {
			if err := requireToken(cl); err != nil {
				return err
			}
			path := "/v1/accounts/" + url.PathEscape(args[0]) + "/" + url.PathEscape(args[1])
			return cl.call(c.OutOrStdout(), http.MethodDelete, path, nil, nil)
		},
	}

	cmd.AddCommand(list, unlink)
	return cmd
}

func metricsCmd(cl *client) *cobra.Command {
	cmd := &cobra.Command{Use: "metrics", Short: "Métricas de posts"}

	sync := &cobra.Command{
		Use:   "sync <platform> <accountId> <postId>",
		Short: "Sincronizar métricas de un post",
		Args:  cobra.ExactArgs(3),
		RunE: func(c *cobra.Command, args []string) error {
			if err := requireToken(cl); err != nil {
				return err
			}
			path := fmt.Sprintf("/v1/accounts/%s/%s/posts/%s/sync",
				url.PathEscape(args[0]), url.PathEscape(args[1]), url.PathEscape(args[2]))
			return cl.call(c.OutOrStdout(), http.MethodPost, path, nil, nil)
		},
	}

	get := &cobra.Command{
		Use:   "get <platform> <accountId> <postId>",
		Short: "Último snapshot guardado",
		Args:  cobra.ExactArgs(3),
		RunE: func(c *cobra.Command, args []string) error {
			if err := requireToken(cl); err != nil {
				return err
			}
			path := fmt.Sprintf("/v1/accounts/%s/%s/posts/%s/metrics",
				url.PathEscape(args[0]), url.PathEscape(args[1]), url.PathEscape(args[2]))
			return cl.call(c.OutOrStdout(), http.MethodGet, path, nil, nil)
		},
	}

	cmd.AddCommand(sync, get)
	return cmd
}
