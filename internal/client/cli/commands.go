package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/elecmate/certsync/internal/client/models"
	"github.com/elecmate/certsync/internal/client/reportsync"
	"github.com/elecmate/certsync/internal/common"
)

var errNoForm = errors.New("no form is open, use 'new' or 'open' first")

// openForm replaces the open form with a new one and starts it.
func (a *App) openForm(ctx context.Context, cfg reportsync.Config) error {
	a.closeForm(ctx)

	cfg.DebounceWindow = a.config.DebounceWindow
	f := a.newForm(cfg)
	d, err := f.Start(ctx)
	if err != nil {
		_ = f.Close(ctx)
		return err
	}
	a.form, a.draft = f, d
	a.describe()
	return nil
}

func (a *App) describe() {
	fmt.Fprintf(a.out, "Editing %s certificate %s\n", a.draft.ReportType, a.draft.CertificateNumber())
	if a.form.HasRecoverableDraft() {
		fmt.Fprintf(a.out, "An unsaved draft (%s) was found. Type 'recover' to restore it or 'discard' to drop it.\n",
			a.form.DraftPreview().Summary())
	}
}

// closeForm flushes the open form. Changes that did not reach the cloud
// stay on the device and the user is told so.
func (a *App) closeForm(ctx context.Context) {
	if a.form == nil {
		return
	}
	if err := a.form.Close(ctx); err != nil {
		a.logger.Warn(ctx, "error closing form", "error", err)
	}
	if st := a.form.Status(); !st.SafeToClose() {
		fmt.Fprintf(a.out, "Warning: %s %s has changes that are not in the cloud yet (%s). They are kept on this device.\n",
			a.draft.ReportType, a.draft.CertificateNumber(), formatStatus(st))
	}
	a.form, a.draft = nil, nil
}

func (a *App) requireForm() error {
	if a.form == nil || a.draft == nil {
		return errNoForm
	}
	return nil
}

func (a *App) New(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: new <%s>", reportTypeList())
	}
	t, err := models.ParseReportType(args[0])
	if err != nil {
		return err
	}

	if a.form != nil && a.draft.ReportType == t {
		d, err := a.form.StartNew(ctx)
		if err != nil {
			return err
		}
		a.draft = d
		a.describe()
		return nil
	}
	return a.openForm(ctx, reportsync.Config{ReportType: t})
}

func (a *App) Open(ctx context.Context, args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("usage: open <%s> <report id>", reportTypeList())
	}
	t, err := models.ParseReportType(args[0])
	if err != nil {
		return err
	}
	return a.openForm(ctx, reportsync.Config{ReportType: t, InitialReportID: args[1]})
}

func (a *App) Set(ctx context.Context, args []string) error {
	if err := a.requireForm(); err != nil {
		return err
	}
	if len(args) != 2 || args[0] == "" {
		return errors.New("usage: set <field> <value>")
	}
	if err := a.draft.Set(args[0], parseValue(args[1])); err != nil {
		if errors.Is(err, common.ErrCertificateNumberImmutable) {
			a.logger.Warn(ctx, "rejected certificate number change", "local_id", a.draft.LocalID,
				"certificate_number", a.draft.CertificateNumber(), "attempted", args[1])
		}
		return err
	}
	a.form.NotifyChanged(a.draft)
	return nil
}

func (a *App) Unset(ctx context.Context, args []string) error {
	if err := a.requireForm(); err != nil {
		return err
	}
	if len(args) != 1 {
		return errors.New("usage: unset <field>")
	}
	if _, ok := a.draft.Get(args[0]); !ok {
		return fmt.Errorf("field %q is not set", args[0])
	}
	a.draft.Unset(args[0])
	a.form.NotifyChanged(a.draft)
	return nil
}

func (a *App) Show(ctx context.Context) error {
	if err := a.requireForm(); err != nil {
		return err
	}
	a.form.Identify(a.draft)
	d := a.draft
	fmt.Fprintf(a.out, "Type:        %s\n", d.ReportType)
	fmt.Fprintf(a.out, "Certificate: %s\n", d.CertificateNumber())
	fmt.Fprintf(a.out, "Status:      %s\n", d.Status)
	if d.ReportID != "" {
		fmt.Fprintf(a.out, "Report:      %s\n", d.ReportID)
	}
	if d.CustomerID != "" {
		fmt.Fprintf(a.out, "Customer:    %s\n", d.CustomerID)
	}
	b, err := json.MarshalIndent(d.Payload(), "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(a.out, string(b))
	return nil
}

func (a *App) Save(ctx context.Context) error {
	if err := a.requireForm(); err != nil {
		return err
	}
	res, err := a.form.SaveNow(ctx)
	if err != nil {
		return err
	}
	a.form.Identify(a.draft)
	if res.Success {
		fmt.Fprintf(a.out, "Saved to the cloud (report %s)\n", res.ReportID)
		return nil
	}
	st := a.form.Status()
	msg := "Saved on this device, cloud " + string(st.Cloud)
	if st.ErrorMessage != "" {
		msg += ": " + st.ErrorMessage
	}
	fmt.Fprintln(a.out, msg)
	return nil
}

func (a *App) Status(ctx context.Context) error {
	if err := a.requireForm(); err != nil {
		return err
	}
	fmt.Fprintln(a.out, formatStatusDetail(a.form.Status()))
	return nil
}

// Recover merges the offered draft into the open form. Merging only ever
// happens on request.
func (a *App) Recover(ctx context.Context) error {
	if err := a.requireForm(); err != nil {
		return err
	}
	if !a.form.HasRecoverableDraft() {
		fmt.Fprintln(a.out, "Nothing to recover")
		return nil
	}
	p := a.form.RecoverDraft(ctx)
	if err := a.draft.Merge(p); err != nil {
		if !errors.Is(err, common.ErrCertificateNumberImmutable) {
			return err
		}
		fmt.Fprintf(a.out, "Recovered fields kept certificate number %s\n", a.draft.CertificateNumber())
	}
	a.form.NotifyChanged(a.draft)
	fmt.Fprintf(a.out, "Recovered %d fields\n", len(p))
	return nil
}

func (a *App) Discard(ctx context.Context) error {
	if err := a.requireForm(); err != nil {
		return err
	}
	if !a.form.HasRecoverableDraft() {
		fmt.Fprintln(a.out, "Nothing to discard")
		return nil
	}
	a.form.DiscardDraft(ctx)
	fmt.Fprintln(a.out, "Unsaved draft discarded")
	return nil
}

func (a *App) Duplicate(ctx context.Context) error {
	if err := a.requireForm(); err != nil {
		return err
	}
	dup, err := a.form.Duplicate(ctx, a.draft)
	if err != nil {
		return err
	}
	from := a.draft.CertificateNumber()
	a.draft = dup
	fmt.Fprintf(a.out, "Duplicated %s as %s\n", from, dup.CertificateNumber())
	return nil
}

func (a *App) Customer(ctx context.Context, args []string) error {
	if err := a.requireForm(); err != nil {
		return err
	}
	if len(args) != 1 {
		return errors.New("usage: customer <customer id>")
	}
	a.draft.CustomerID = args[0]
	a.form.NotifyChanged(a.draft)
	return nil
}

func (a *App) Complete(ctx context.Context) error {
	if err := a.requireForm(); err != nil {
		return err
	}
	a.draft.Complete()
	a.form.NotifyChanged(a.draft)
	return nil
}

func (a *App) Offline(ctx context.Context, args []string) error {
	if len(args) != 1 || (args[0] != "on" && args[0] != "off") {
		return errors.New("usage: offline on|off")
	}
	a.online.ForceOffline(ctx, args[0] == "on")
	return nil
}

func reportTypeList() string {
	s := ""
	for i, t := range models.ReportTypes() {
		if i > 0 {
			s += "|"
		}
		s += string(t)
	}
	return s
}
