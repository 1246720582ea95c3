package cli

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

// secretFileName is the file-map key holding an encrypted secret bundle.
const secretFileName = ".env.age"

var rootCmd = &cobra.Command{
	Use:   "clawfactory",
	Short: "ClawFactory CLI - OpenClaw Copy Registry",
	Long:  "Install, search and publish AI agent configuration copies.",
}

// Execute runs the CLI.
func Execute() error {
	return rootCmd.Execute()
}

func newClient() (*Client, *Config, error) {
	cfg, err := LoadConfig()
	if err != nil {
		return nil, nil, err
	}
	return NewClient(cfg), cfg, nil
}

var listCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List all available copies",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, _, err := newClient()
		if err != nil {
			return err
		}
		copies, err := client.ListCopies()
		if err != nil {
			return err
		}
		if len(copies) == 0 {
			fmt.Println("No copies found.")
			return nil
		}
		fmt.Printf("Found %d copies:\n\n", len(copies))
		for _, c := range copies {
			printCopySummary(c)
		}
		return nil
	},
}

var searchCmd = &cobra.Command{
	Use:     "search <query>",
	Aliases: []string{"s"},
	Short:   "Search for copies",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, _, err := newClient()
		if err != nil {
			return err
		}
		copies, err := client.Search(args[0])
		if err != nil {
			return err
		}
		if len(copies) == 0 {
			fmt.Println("No results found.")
			return nil
		}
		fmt.Printf("Found %d copies:\n\n", len(copies))
		for _, c := range copies {
			fmt.Printf("  %s\n    %s\n\n", c.ID, c.Name)
		}
		return nil
	},
}

var installCmd = &cobra.Command{
	Use:     "install <copy-id>",
	Aliases: []string{"i", "add"},
	Short:   "Install a copy to your system",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, _, err := newClient()
		if err != nil {
			return err
		}
		copyID := args[0]
		fmt.Printf("Installing %q...\n", copyID)

		copy, err := client.GetCopy(copyID)
		if err != nil {
			return err
		}

		installRoot, err := InstallDir()
		if err != nil {
			return err
		}
		installPath := filepath.Join(installRoot, copyID)
		if err := os.MkdirAll(installPath, 0o755); err != nil {
			return fmt.Errorf("creating install directory: %w", err)
		}

		for filename, content := range copy.Files {
			target := filepath.Join(installPath, filepath.Clean(filename))
			if !strings.HasPrefix(target, installPath) {
				return fmt.Errorf("refusing to write outside install directory: %s", filename)
			}
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return fmt.Errorf("creating directory for %s: %w", filename, err)
			}
			if err := os.WriteFile(target, []byte(content), 0o644); err != nil {
				return fmt.Errorf("writing %s: %w", filename, err)
			}
			fmt.Printf("  %s\n", filename)
		}

		if copy.Memory != "" {
			memPath := filepath.Join(installPath, "memory", copyID+".md")
			if err := os.MkdirAll(filepath.Dir(memPath), 0o755); err != nil {
				return fmt.Errorf("creating memory directory: %w", err)
			}
			if err := os.WriteFile(memPath, []byte(copy.Memory), 0o644); err != nil {
				return fmt.Errorf("writing memory: %w", err)
			}
			fmt.Printf("  memory/%s.md\n", copyID)
		}

		if err := client.TrackInstall(copyID); err != nil {
			fmt.Fprintf(os.Stderr, "warning: could not report install: %v\n", err)
		}

		fmt.Printf("\nInstalled to %s\n", installPath)
		return nil
	},
}

var infoCmd = &cobra.Command{
	Use:     "info <copy-id>",
	Aliases: []string{"show"},
	Short:   "Show copy details",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, _, err := newClient()
		if err != nil {
			return err
		}
		copy, err := client.GetCopy(args[0])
		if err != nil {
			return err
		}
		fmt.Printf("\n%s\n\n", copy.Name)
		fmt.Printf("  ID: %s\n", copy.ID)
		fmt.Printf("  Author: %s\n", copy.Author)
		fmt.Printf("  Version: %s\n", copy.Version)
		fmt.Printf("  Category: %s\n", copy.Category)
		fmt.Printf("  Rating: %.1f (%d ratings)\n", copy.RatingAverage, copy.RatingCount)
		fmt.Printf("  Installs: %d\n", copy.InstallCount)
		fmt.Printf("  %s\n", copy.Description)
		fmt.Printf("\n  Skills: %s\n", strings.Join(copy.Skills, ", "))
		fmt.Printf("  Tags: %s\n", strings.Join(copy.Tags, ", "))
		names := make([]string, 0, len(copy.Files))
		for name := range copy.Files {
			names = append(names, name)
		}
		fmt.Printf("\n  Files: %s\n", strings.Join(names, ", "))
		return nil
	},
}

var categoriesCmd = &cobra.Command{
	Use:     "categories",
	Aliases: []string{"cats"},
	Short:   "List all categories",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, _, err := newClient()
		if err != nil {
			return err
		}
		counts, err := client.Categories()
		if err != nil {
			return err
		}
		fmt.Println("\nCategories:")
		for _, c := range counts {
			fmt.Printf("  %s: %d\n", c.Category, c.Count)
		}
		return nil
	},
}

var uploadPrivate bool

var uploadCmd = &cobra.Command{
	Use:   "upload <directory>",
	Short: "Upload a copy from a directory of files",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, cfg, err := newClient()
		if err != nil {
			return err
		}
		if cfg.Token == "" {
			return fmt.Errorf("not logged in; run 'clawfactory login' first")
		}

		files, err := readDirFiles(args[0])
		if err != nil {
			return err
		}
		if len(files) == 0 {
			return fmt.Errorf("no files found in %s", args[0])
		}

		reader := bufio.NewReader(os.Stdin)
		name := prompt(reader, "Name: ")
		if name == "" {
			return fmt.Errorf("name is required")
		}
		description := prompt(reader, "Description: ")
		category := prompt(reader, "Category: ")

		result, err := client.Upload(UploadInput{
			Name:        name,
			Description: description,
			Author:      cfg.Username,
			Category:    category,
			Files:       files,
			IsPrivate:   uploadPrivate,
		})
		if err != nil {
			return err
		}
		if result.IsUpdate {
			fmt.Printf("Updated %s (previous version %s)\n", result.ID, result.PreviousVersion)
		} else {
			fmt.Printf("Uploaded %s\n", result.ID)
		}
		return nil
	},
}

var minePrivate bool

var mineCmd = &cobra.Command{
	Use:   "mine",
	Short: "List your own copies",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, cfg, err := newClient()
		if err != nil {
			return err
		}
		if cfg.Token == "" {
			return fmt.Errorf("not logged in; run 'clawfactory login' first")
		}
		userID, err := strconv.ParseUint(cfg.Token, 10, 64)
		if err != nil {
			return fmt.Errorf("stored token is invalid; log in again")
		}
		copies, err := client.MyCopies(uint(userID))
		if err != nil {
			return err
		}
		for _, c := range copies {
			if minePrivate && c.IsPrivate != 1 {
				continue
			}
			printCopySummary(c)
		}
		return nil
	},
}

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Log in and store your token",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, cfg, err := newClient()
		if err != nil {
			return err
		}
		reader := bufio.NewReader(os.Stdin)
		username := prompt(reader, "Username: ")
		password, err := promptPassword("Password: ")
		if err != nil {
			return err
		}

		token, _, err := client.Login(username, password)
		if err != nil {
			return err
		}
		cfg.Token = token
		cfg.Username = username
		if err := cfg.Save(); err != nil {
			return err
		}
		fmt.Println("Logged in.")
		return nil
	},
}

var registerCmd = &cobra.Command{
	Use:   "register",
	Short: "Create an account and store your token",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, cfg, err := newClient()
		if err != nil {
			return err
		}
		reader := bufio.NewReader(os.Stdin)
		username := prompt(reader, "Username: ")
		email := prompt(reader, "Email (optional): ")
		password, err := promptPassword("Password: ")
		if err != nil {
			return err
		}

		token, _, err := client.Register(username, password, email)
		if err != nil {
			return err
		}
		cfg.Token = token
		cfg.Username = username
		if err := cfg.Save(); err != nil {
			return err
		}
		fmt.Println("Registered and logged in.")
		return nil
	},
}

var secretCmd = &cobra.Command{
	Use:   "secret",
	Short: "Store and retrieve encrypted secret bundles",
}

var secretUploadCmd = &cobra.Command{
	Use:   "upload <file>",
	Short: "Encrypt a file and upload it as a private copy",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, cfg, err := newClient()
		if err != nil {
			return err
		}
		if cfg.Token == "" {
			return fmt.Errorf("not logged in; run 'clawfactory login' first")
		}

		plaintext, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("reading %s: %w", args[0], err)
		}

		key := uuid.New().String()
		armored, err := EncryptSecret(plaintext, key)
		if err != nil {
			return err
		}

		name := "secret-" + uuid.New().String()[:8]
		result, err := client.Upload(UploadInput{
			Name:        name,
			Description: "Encrypted secret bundle",
			Author:      cfg.Username,
			Category:    "others",
			Files:       map[string]string{secretFileName: armored},
			IsPrivate:   true,
		})
		if err != nil {
			return err
		}

		fmt.Printf("Uploaded secret as %s\n", result.ID)
		fmt.Println("Decryption key (shown once, store it safely):")
		fmt.Printf("  %s\n", key)
		return nil
	},
}

var secretInstallCmd = &cobra.Command{
	Use:   "install <copy-id> <key>",
	Short: "Fetch and decrypt a secret bundle to .env",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, _, err := newClient()
		if err != nil {
			return err
		}
		copy, err := client.GetCopy(args[0])
		if err != nil {
			return err
		}
		armored, ok := copy.Files[secretFileName]
		if !ok {
			return fmt.Errorf("copy %s holds no secret bundle", args[0])
		}
		plaintext, err := DecryptSecret(armored, args[1])
		if err != nil {
			return fmt.Errorf("decryption failed (wrong key?): %w", err)
		}
		if err := os.WriteFile(".env", plaintext, 0o600); err != nil {
			return fmt.Errorf("writing .env: %w", err)
		}
		fmt.Println("Secret written to .env")
		return nil
	},
}

func printCopySummary(c Copy) {
	fmt.Printf("  %s\n", c.ID)
	fmt.Printf("    %s by %s\n", c.Name, c.Author)
	if c.Description != "" {
		desc := c.Description
		if len(desc) > 60 {
			desc = desc[:60] + "..."
		}
		fmt.Printf("    %s\n", desc)
	}
	fmt.Printf("    rating %.1f | installs %d | %s\n\n", c.RatingAverage, c.InstallCount, c.Category)
}

func prompt(reader *bufio.Reader, label string) string {
	fmt.Print(label)
	line, _ := reader.ReadString('\n')
	return strings.TrimSpace(line)
}

func promptPassword(label string) (string, error) {
	fmt.Print(label)
	raw, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		return "", fmt.Errorf("reading password: %w", err)
	}
	return string(raw), nil
}

// readDirFiles loads every regular file under dir into a file map, keyed by
// path relative to dir.
func readDirFiles(dir string) (map[string]string, error) {
	files := make(map[string]string)
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		content, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("reading %s: %w", path, err)
		}
		files[rel] = string(content)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking %s: %w", dir, err)
	}
	return files, nil
}

func init() {
	uploadCmd.Flags().BoolVar(&uploadPrivate, "private", false, "upload as a private copy")
	mineCmd.Flags().BoolVar(&minePrivate, "private", false, "show only private copies")

	secretCmd.AddCommand(secretUploadCmd, secretInstallCmd)
	rootCmd.AddCommand(
		listCmd, searchCmd, installCmd, infoCmd, categoriesCmd,
		uploadCmd, mineCmd, loginCmd, registerCmd, secretCmd,
	)
}
