package cli

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/turtacn/moldesc/internal/application/calculation"
	"github.com/turtacn/moldesc/internal/domain/run"
	"github.com/turtacn/moldesc/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/moldesc/internal/infrastructure/storage/minio"
	"github.com/turtacn/moldesc/pkg/errors"
)

type calcOptions struct {
	smiles          []string
	format          string
	descriptorsFile string
	modules         []string
	nproc           int
	confID          int
	explicitH       bool
	quiet           bool
	fillMissing     bool
}

// NewCalcCmd creates the calc command.
func NewCalcCmd() *cobra.Command {
	opts := &calcOptions{}
	cmd := &cobra.Command{
		Use:   "calc [FILE...]",
		Short: "Calculate descriptors for molecules",
		Long: "Calculate descriptors for the molecules given with --smiles or read from\n" +
			"FILE arguments (\"-\" or no argument reads stdin). SMILES input holds one\n" +
			"molecule per line, optionally followed by a title.",
		Example: "  moldesc calc --smiles CCO --smiles c1ccccc1\n" +
			"  moldesc calc --format sdf --module atomcount,weight -o csv library.sdf",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCalc(cmd, opts, args)
		},
	}

	f := cmd.Flags()
	f.StringArrayVarP(&opts.smiles, "smiles", "s", nil, "SMILES input (repeatable)")
	f.StringVarP(&opts.format, "format", "f", string(calculation.FormatSMILES), "input format (smiles, molblock, sdf)")
	f.StringVarP(&opts.descriptorsFile, "descriptors", "d", "", "JSON file with a descriptor list")
	f.StringSliceVarP(&opts.modules, "module", "m", nil, "restrict the default set to these catalog modules")
	f.IntVarP(&opts.nproc, "nproc", "j", 0, "worker count (default from config)")
	f.IntVar(&opts.confID, "conf-id", -1, "conformer id")
	f.BoolVar(&opts.explicitH, "explicit-h", false, "add explicit hydrogens before calculating")
	f.BoolVarP(&opts.quiet, "quiet", "q", false, "suppress progress output")
	f.BoolVar(&opts.fillMissing, "fill-missing", false, "print NaN for missing values in table output")
	return cmd
}

func runCalc(cmd *cobra.Command, opts *calcOptions, args []string) error {
	cliCtx, err := GetCLIContext(cmd)
	if err != nil {
		return err
	}

	cfg := cliCtx.Config.Calculator
	if len(opts.modules) > 0 {
		cfg.Modules = opts.modules
	}
	if cmd.Flags().Changed("quiet") {
		cfg.Quiet = opts.quiet
	}

	req := calculation.Request{
		Format: calculation.Format(strings.ToLower(opts.format)),
		NProc:  opts.nproc,
	}
	if cmd.Flags().Changed("conf-id") {
		req.ConfID = &opts.confID
	}
	if cmd.Flags().Changed("explicit-h") {
		req.ExplicitHydrogens = &opts.explicitH
	}
	if opts.descriptorsFile != "" {
		if req.Descriptors, err = readDescriptorFile(opts.descriptorsFile); err != nil {
			return err
		}
	}
	if req.Inputs, err = collectInputs(cmd, req.Format, opts.smiles, args); err != nil {
		return err
	}

	svc := calculation.NewService(cfg, cliCtx.Logger)
	res, err := svc.Calculate(cmd.Context(), req)
	if err != nil {
		return err
	}
	cliCtx.Logger.Debug("Calculation finished",
		logging.String("run_id", res.ID.String()),
		logging.Int("molecules", len(res.Rows)),
		logging.Duration("duration", res.Duration))

	return printRun(cmd, cliCtx.OutputFormat, res, opts.fillMissing)
}

func readDescriptorFile(path string) ([]map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeBadRequest, "failed to read descriptor file")
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var out []map[string]any
	if err := dec.Decode(&out); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeBadRequest, "descriptor file is not a JSON list")
	}
	return out, nil
}

// collectInputs gathers --smiles values and the contents of files. With
// neither, stdin is read.
func collectInputs(cmd *cobra.Command, format calculation.Format, smiles, files []string) ([]string, error) {
	inputs := append([]string(nil), smiles...)
	if len(files) == 0 && len(smiles) == 0 {
		files = []string{"-"}
	}
	for _, name := range files {
		var r io.Reader
		if name == "-" {
			r = cmd.InOrStdin()
		} else {
			f, err := os.Open(name)
			if err != nil {
				return nil, errors.Wrap(err, errors.ErrCodeBadRequest, "failed to open input").WithDetail(name)
			}
			defer f.Close()
			r = f
		}
		got, err := readInputs(r, format)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeBadRequest, "failed to read input").WithDetail(name)
		}
		inputs = append(inputs, got...)
	}
	return inputs, nil
}

// readInputs returns one entry per SMILES line, or the whole text for MOL
// block and SD inputs.
func readInputs(r io.Reader, format calculation.Format) ([]string, error) {
	if format != "" && format != calculation.FormatSMILES {
		data, err := io.ReadAll(r)
		if err != nil {
			return nil, err
		}
		if strings.TrimSpace(string(data)) == "" {
			return nil, nil
		}
		return []string{string(data)}, nil
	}

	var out []string
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1<<20)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, line)
	}
	return out, sc.Err()
}

func printRun(cmd *cobra.Command, format string, r *run.Run, fillMissing bool) error {
	switch format {
	case "json":
		return printJSON(cmd, r)
	case "csv":
		data, err := minio.EncodeCSV(r)
		if err != nil {
			return err
		}
		_, err = cmd.OutOrStdout().Write(data)
		return err
	default:
		fmt.Fprint(cmd.OutOrStdout(), FormatTable(runHeaders(r), runRows(r, fillMissing)))
		return nil
	}
}

func runHeaders(r *run.Run) []string {
	return append([]string{"#", "name"}, r.Descriptors...)
}

func runRows(r *run.Run, fillMissing bool) [][]string {
	rows := make([][]string, 0, len(r.Rows))
	for _, row := range r.Rows {
		name := row.Name
		if name == "" {
			name = row.Input
		}
		cells := []string{strconv.Itoa(row.Index + 1), name}
		if row.Failed() {
			cells[1] += " (" + row.ParseError + ")"
		}
		for i := range r.Descriptors {
			var v any
			if i < len(row.Values) {
				v = row.Values[i]
			}
			cells = append(cells, formatValue(v, fillMissing))
		}
		rows = append(rows, cells)
	}
	return rows
}

func formatValue(v any, fillMissing bool) string {
	switch x := v.(type) {
	case nil:
		if fillMissing {
			return "NaN"
		}
		return "-"
	case float64:
		return strconv.FormatFloat(x, 'g', 6, 64)
	case int:
		return strconv.Itoa(x)
	case bool:
		return strconv.FormatBool(x)
	default:
		return fmt.Sprint(x)
	}
}
