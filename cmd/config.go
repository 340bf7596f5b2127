/*
Copyright 2024 Blnk Finance Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package main

import (
	"encoding/json"
	"fmt"
	"log"

	"github.com/spf13/cobra"
)

// redacted hides secrets when the computed configuration is printed.
const redacted = "********"

// configCommands prints the computed configuration, with keys and secrets masked.
func configCommands(app *instance) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "config outputs your instance's computed configuration",
		Run: func(cmd *cobra.Command, args []string) {
			cfg := *app.cnf
			if cfg.Chain.KeeperPrivateKey != "" {
				cfg.Chain.KeeperPrivateKey = redacted
			}
			if cfg.Chain.IssuerPrivateKey != "" {
				cfg.Chain.IssuerPrivateKey = redacted
			}
			if cfg.Issuer.ApiKey != "" {
				cfg.Issuer.ApiKey = redacted
			}
			if cfg.Issuer.WebhookSecret != "" {
				cfg.Issuer.WebhookSecret = redacted
			}

			data, err := json.MarshalIndent(cfg, "", "    ")
			if err != nil {
				log.Fatalf("Error printing config: %v\n", err)
			}

			fmt.Println(string(data))
		},
	}
	return cmd
}
