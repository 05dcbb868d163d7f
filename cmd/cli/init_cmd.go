package main

import (
	"fmt"
	"io"
	"os"

	"github.com/emx-mail/compose/pkgs/config"
)

func handleInit(w io.Writer) error {
	root := config.ExampleRootConfig()

	if config.HasEmxConfig() {
		data, err := config.Marshal(root, false)
		if err != nil {
			return fmt.Errorf("failed to format example config: %w", err)
		}

		fmt.Fprintln(w, "emx-config detected. Configure emx-compose using emx-config.")
		fmt.Fprintln(w, "Example JSON (keys under 'mail'):")
		fmt.Fprintln(w, string(data))
		fmt.Fprintln(w, "Then verify with: emx-config list --json")
		return nil
	}

	configPath, err := config.GetEnvConfigPath()
	if err != nil {
		return err
	}
	if _, err := os.Stat(configPath); err == nil {
		return fmt.Errorf("config file already exists: %s", configPath)
	}
	if err := config.SaveConfig(configPath, root); err != nil {
		return err
	}
	fmt.Fprintf(w, "Created config file at: %s\n", configPath)
	fmt.Fprintln(w, "Please edit the file to add your SMTP credentials.")
	return nil
}
