package cmd

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/spf13/cobra"
	"github.com/wegman-software/osmlr-go/internal/attrs"
	"github.com/wegman-software/osmlr-go/internal/logger"
)

var (
	attributePairs []string
	attributesJSON string
)

var augmentCmd = &cobra.Command{
	Use:   "augment <encoded-line>",
	Short: "Apply attributes to the edges covered by one line reference",
	Long: `Decode a line reference and merge the given attributes into every edge it
covers. The reference is a JSON location document, raw or base64 encoded:

  {"type":"line","edges":[12,-13,14],"positiveOffset":4.5,"negativeOffset":0}

Edge references are 1-based edge ids; a negative sign means the edge is
traversed backwards and receives reversed attributes.`,
	Example: `  osmlr-go augment -r ./routerdb -a maxspeed=30 -a roadworks=yes '{"edges":[1,2,3]}'`,
	Args:    cobra.ExactArgs(1),
	Run:     runAugment,
}

func init() {
	rootCmd.AddCommand(augmentCmd)

	augmentCmd.Flags().StringArrayVarP(&attributePairs, "attr", "a", nil, "Attribute to apply as key=value (repeatable)")
	augmentCmd.Flags().StringVar(&attributesJSON, "attributes-json", "", "Attributes to apply as a JSON object")
}

// parseAttributes combines --attributes-json and --attr, later values win
func parseAttributes(pairs []string, jsonObject string) (attrs.Set, error) {
	var set attrs.Set
	if jsonObject != "" {
		if err := set.UnmarshalJSON([]byte(jsonObject)); err != nil {
			return nil, err
		}
	}
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid attribute %q, want key=value", p)
		}
		set.AddOrReplace(k, v)
	}
	if set.Len() == 0 {
		return nil, fmt.Errorf("no attributes given")
	}
	return set, nil
}

func runAugment(cmd *cobra.Command, args []string) {
	log := logger.Get()

	if err := cfg.Validate(); err != nil {
		exitWithError("invalid configuration", err)
	}

	attributes, err := parseAttributes(attributePairs, attributesJSON)
	if err != nil {
		exitWithError("invalid attributes", err)
	}

	ctx := context.Background()
	db, closeDB, err := openRouterDB(ctx, cfg.Readonly)
	if err != nil {
		exitWithError("failed to open router database", err)
	}

	coder, vehicle, err := newCoder(db)
	if err != nil {
		closeDB()
		exitWithError("invalid vehicle profile", err)
	}
	reverseFn, closeReverse, err := newReverse()
	if err != nil {
		closeDB()
		exitWithError("invalid reversal script", err)
	}
	defer closeReverse()

	res, err := coder.DecodeLine(ctx, args[0], attributes, reverseFn)
	if err != nil {
		closeDB()
		exitWithError("augmentation failed", err)
	}
	if err := closeDB(); err != nil {
		exitWithError("failed to save router database", err)
	}

	if !res.Decoded {
		log.Warn("Location reference is not a line, nothing changed")
		return
	}

	covered := make([]string, len(res.Covered))
	for i, e := range res.Covered {
		covered[i] = e.String()
	}
	log.Info("Line augmented",
		zap.String("vehicle", vehicle.Name),
		zap.Stringer("attributes", attributes),
		zap.Bool("augmented", res.Augmented),
		zap.Strings("covered", covered),
		zap.Uint32s("updated", res.Updated),
		zap.Int("profiles_added", res.ProfilesAdded),
		zap.Int("meta_added", res.MetaAdded),
	)
}
