package ops

import (
	"errors"
	"io/fs"
	"os"

	"github.com/tagspeak/tagspeak/pkg/interp"
	"github.com/tagspeak/tagspeak/pkg/value"
	"github.com/tagspeak/tagspeak/tsapi"
)

func registerFiles(r *interp.Registry) {
	for _, e := range []interp.Entry{
		{Op: "cd", Usage: `[cd@"dir"]`, Summary: "Change the current directory inside the sandbox.", Handler: opCd},
		{Op: "pwd", Usage: "[pwd]", Summary: "The current directory, as a root-anchored path.", Handler: opPwd},
		{Op: "exists", Usage: `[exists@"file"]`, Summary: "Whether a path inside the sandbox exists.", Handler: opExists},
		{Op: "load", Usage: `[load@"data.json"]`, Summary: "Load a json, jsonc, yaml or cbor file as a document.", Handler: opLoad},
	} {
		r.Register(e)
	}
}

func pathArg(rt *interp.Runtime, p *tsapi.Packet) (string, error) {
	v, err := rt.ArgValue(p)
	if err != nil {
		return "", err
	}
	if p.Arg != nil && p.Arg.Kind == tsapi.ArgIdent && v.IsUnit() {
		return p.Arg.Text, nil
	}
	if v.Kind() != value.KindStr || v.String() == "" {
		return "", tsapi.ErrorInvalid(p.Op+" needs a path", [2]string{"packet", p.String()})
	}
	return v.String(), nil
}

func opCd(rt *interp.Runtime, p *tsapi.Packet) (value.Value, error) {
	req, err := pathArg(rt, p)
	if err != nil {
		return value.Unit, err
	}
	host, err := rt.Resolve("cd", req)
	if err != nil {
		return value.Unit, err
	}
	fi, err := os.Stat(host)
	if err != nil {
		return value.Unit, tsapi.ErrorIo("changing directory", req, err)
	}
	if !fi.IsDir() {
		return value.Unit, tsapi.ErrorIo("changing directory", req, errors.New("not a directory"))
	}
	v, err := rt.SetCwd(req)
	if err != nil {
		return value.Unit, err
	}
	return value.Str(v), nil
}

func opPwd(rt *interp.Runtime, p *tsapi.Packet) (value.Value, error) {
	return value.Str(rt.Cwd()), nil
}

func opExists(rt *interp.Runtime, p *tsapi.Packet) (value.Value, error) {
	req, err := pathArg(rt, p)
	if err != nil {
		return value.Unit, err
	}
	host, err := rt.Resolve("exists", req)
	if err != nil {
		return value.Unit, err
	}
	_, err = os.Stat(host)
	switch {
	case err == nil:
		return value.Bool(true), nil
	case errors.Is(err, fs.ErrNotExist):
		return value.Bool(false), nil
	}
	return value.Unit, tsapi.ErrorIo("checking existence", req, err)
}

func opLoad(rt *interp.Runtime, p *tsapi.Packet) (value.Value, error) {
	req, err := pathArg(rt, p)
	if err != nil {
		return value.Unit, err
	}
	host, err := rt.Resolve("load", req)
	if err != nil {
		return value.Unit, err
	}
	doc, err := value.LoadDocument(host, rt.Root())
	if err != nil {
		return value.Unit, err
	}
	return value.FromDoc(doc), nil
}
