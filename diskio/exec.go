package diskio

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"syscall"

	"github.com/twopanel/ftpcore/common"
)

type fileHandle = *os.File

// execute runs on the single disk goroutine; every case here is the body
// of one of §4.1's verbs.
func (d *Disk) execute(req request) Result {
	switch req.kind {
	case opCreateDir:
		return d.doCreateDir(req)
	case opCreateFile:
		return d.doCreateFile(req)
	case opRetryCreatedFile, opRetryResumedFile:
		return d.doRetryFile(req)
	case opCheckOrWriteFile:
		return d.doCheckOrWriteFile(req)
	case opCreateAndWriteFile:
		return d.doCreateAndWriteFile(req)
	case opListDir:
		return d.doListDir(req)
	case opDeleteDir:
		return d.doDeleteDir(req)
	case opDeleteFile:
		return d.doDeleteFile(req)
	case opOpenFileForReading:
		return d.doOpenFileForReading(req)
	case opReadFile:
		return d.doReadFile(req)
	default:
		return Result{ProblemID: common.EProblem.LowMem()}
	}
}

func (d *Disk) doCreateDir(req request) Result {
	full := filepath.Join(req.path, req.name)
	name := req.name
	for attempt := 0; ; attempt++ {
		err := os.Mkdir(full, 0o755)
		if err == nil {
			return Result{NewName: name}
		}
		if !os.IsExist(err) {
			return Result{ProblemID: common.EProblem.CannotCreateTgtDir(), OSErrNo: errno(err)}
		}
		if req.forceAction != forceAutoRename {
			return Result{ProblemID: common.EProblem.TgtDirAlreadyExists()}
		}
		name = autoRenameCandidate(req.name, attempt+1)
		full = filepath.Join(req.path, name)
	}
}

// forceAutoRename mirrors queue.ForceAutoRename's int value; diskio does
// not import queue to keep the disk layer free of scheduling concerns, so
// the worker translates queue.ForcedAction to these plain ints when it
// submits a request.
const (
	forceNone = iota
	forceSkip
	forceRetry
	forceAutoRename
	forceOverwrite
	forceResume
	forceResumeOrOverwrite
)

func autoRenameCandidate(name string, attempt int) string {
	ext := filepath.Ext(name)
	base := name[:len(name)-len(ext)]
	return base + "_" + strconv.Itoa(attempt) + ext
}

// errno extracts a stable small int from a wrapped syscall errno without
// depending on GOOS-specific syscall error types directly, so this file
// needs no _unix.go/_windows.go split.
func errno(err error) int {
	if err == nil {
		return 0
	}
	var sysErr syscall.Errno
	if errors.As(err, &sysErr) {
		return int(sysErr)
	}
	return -1
}

// doCreateFile implements the four conflict modes of §4.1's createFile:
// user-prompt (reported back as TgtFileAlreadyExists, the worker opens a
// policy dialog), auto-rename, resume (open existing for read/write, let
// the caller verify/extend from an offset), and overwrite (truncate).
func (d *Disk) doCreateFile(req request) Result {
	full := filepath.Join(req.path, req.name)
	name := req.name

	for attempt := 0; ; attempt++ {
		f, err := os.OpenFile(full, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o644)
		if err == nil {
			return Result{NewName: name, Handle: &OpenHandle{path: full, file: f}, NewState: tgtCreated}
		}
		if !os.IsExist(err) {
			return Result{ProblemID: common.EProblem.CannotCreateTgtFile(), OSErrNo: errno(err)}
		}

		switch req.forceAction {
		case forceAutoRename:
			name = autoRenameCandidate(req.name, attempt+1)
			full = filepath.Join(req.path, name)
			continue
		case forceOverwrite:
			f, err := os.OpenFile(full, os.O_RDWR|os.O_TRUNC, 0o644)
			if err != nil {
				return Result{ProblemID: common.EProblem.CannotCreateTgtFile(), OSErrNo: errno(err)}
			}
			return Result{NewName: name, Handle: &OpenHandle{path: full, file: f}, NewState: tgtCreated}
		case forceResume, forceResumeOrOverwrite:
			fi, statErr := os.Stat(full)
			if statErr != nil {
				return Result{ProblemID: common.EProblem.CannotCreateTgtFile(), OSErrNo: errno(statErr)}
			}
			f, err := os.OpenFile(full, os.O_RDWR, 0o644)
			if err != nil {
				return Result{ProblemID: common.EProblem.CannotCreateTgtFile(), OSErrNo: errno(err)}
			}
			return Result{
				NewName:    name,
				Handle:     &OpenHandle{path: full, file: f},
				ActualSize: fi.Size(),
				NewState:   tgtResumed,
			}
		default:
			if req.allowOverwriteIfSmall {
				if fi, statErr := os.Stat(full); statErr == nil && fi.Size() == 0 {
					f, err := os.OpenFile(full, os.O_RDWR|os.O_TRUNC, 0o644)
					if err == nil {
						return Result{NewName: name, Handle: &OpenHandle{path: full, file: f}, CanOverwrite: true, NewState: tgtCreated}
					}
				}
			}
			return Result{ProblemID: common.EProblem.TgtFileAlreadyExists()}
		}
	}
}

const (
	tgtUnknown = iota
	tgtTransferred
	tgtCreated
	tgtResumed
)

// doRetryFile re-validates a handle this session already created or
// resumed, the "same client already created/resumed the file earlier in
// this operation" variants of §4.1.
func (d *Disk) doRetryFile(req request) Result {
	if req.handle == nil || req.handle.file == nil {
		return Result{ProblemID: common.EProblem.RetryOnCreatedFile()}
	}
	fi, err := req.handle.file.Stat()
	if err != nil {
		return Result{ProblemID: common.EProblem.RetryOnCreatedFile(), OSErrNo: errno(err)}
	}
	return Result{Handle: req.handle, ActualSize: fi.Size()}
}

// doCheckOrWriteFile verifies the portion of buffer covering
// [checkFromOffset, writeOrReadFromOffset) against what is already on
// disk (resume verification), then writes the remaining
// [writeOrReadFromOffset-checkFromOffset, validBytes) portion of buffer
// starting at writeOrReadFromOffset. Offsets are absolute, per §4.1.
func (d *Disk) doCheckOrWriteFile(req request) Result {
	f := req.handle.file
	data := req.buffer[:req.validBytes]
	verifyLen := int(req.writeOrReadFromOffset - req.checkFromOffset)
	if verifyLen < 0 {
		verifyLen = 0
	}
	if verifyLen > len(data) {
		verifyLen = len(data)
	}

	if verifyLen > 0 {
		existing := make([]byte, verifyLen)
		if _, err := f.ReadAt(existing, req.checkFromOffset); err != nil && err != io.EOF {
			return Result{ProblemID: common.EProblem.UnableToResume(), OSErrNo: errno(err)}
		}
		for i := range existing {
			if existing[i] != data[i] {
				return Result{ProblemID: common.EProblem.ResumeTestFailed()}
			}
		}
	}

	toWrite := data[verifyLen:]
	n, err := f.WriteAt(toWrite, req.writeOrReadFromOffset)
	if err != nil {
		return Result{ProblemID: common.EProblem.TgtFileWriteError(), OSErrNo: errno(err)}
	}
	return Result{BytesTransferred: n}
}

func (d *Disk) doCreateAndWriteFile(req request) Result {
	full := filepath.Join(req.path, req.name)
	f, err := os.OpenFile(full, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return Result{ProblemID: common.EProblem.CannotCreateTgtFile(), OSErrNo: errno(err)}
	}
	n, err := f.WriteAt(req.buffer[:req.validBytes], req.writeOrReadFromOffset)
	if err != nil {
		f.Close()
		return Result{ProblemID: common.EProblem.TgtFileWriteError(), OSErrNo: errno(err)}
	}
	return Result{Handle: &OpenHandle{path: full, file: f}, BytesTransferred: n}
}

func (d *Disk) doListDir(req request) Result {
	entries, err := os.ReadDir(req.path)
	if err != nil {
		return Result{ProblemID: common.EProblem.UnableToGetWorkingDir(), OSErrNo: errno(err)}
	}
	out := make([]ListEntry, 0, len(entries))
	for _, e := range entries {
		info, err := e.Info()
		var size int64
		if err == nil {
			size = info.Size()
		}
		out = append(out, ListEntry{Name: e.Name(), IsDir: e.IsDir(), Size: size})
	}
	return Result{Entries: out}
}

func (d *Disk) doDeleteDir(req request) Result {
	full := filepath.Join(req.path, req.name)
	if err := os.Remove(full); err != nil {
		if os.IsNotExist(err) {
			return Result{}
		}
		return Result{ProblemID: common.EProblem.UnableToDeleteDiskDir(), OSErrNo: errno(err)}
	}
	return Result{}
}

func (d *Disk) doDeleteFile(req request) Result {
	full := filepath.Join(req.path, req.name)
	if err := os.Remove(full); err != nil {
		if os.IsNotExist(err) {
			return Result{}
		}
		return Result{ProblemID: common.EProblem.UnableToDeleteDiskFile(), OSErrNo: errno(err)}
	}
	return Result{}
}

func (d *Disk) doOpenFileForReading(req request) Result {
	full := filepath.Join(req.path, req.name)
	f, err := os.Open(full)
	if err != nil {
		return Result{ProblemID: common.EProblem.UploadCannotOpenSrcFile(), OSErrNo: errno(err)}
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return Result{ProblemID: common.EProblem.UploadCannotOpenSrcFile(), OSErrNo: errno(err)}
	}
	return Result{Handle: &OpenHandle{path: full, file: f}, ActualSize: fi.Size()}
}

// doReadFile is readFile/readFileInASCII unified: ascii expands every LF
// it sees to CRLF as it copies into req.buffer, so NewOffset (source
// position) and BytesTransferred (bytes placed in the caller's buffer)
// diverge in ASCII mode (§4.1).
func (d *Disk) doReadFile(req request) Result {
	raw := make([]byte, len(req.buffer))
	n, err := req.handle.file.ReadAt(raw, req.writeOrReadFromOffset)
	if err != nil && err != io.EOF {
		return Result{ProblemID: common.EProblem.TgtFileReadError(), OSErrNo: errno(err)}
	}
	raw = raw[:n]

	if !req.ascii {
		copy(req.buffer, raw)
		return Result{BytesTransferred: n, NewOffset: req.writeOrReadFromOffset + int64(n)}
	}

	out := req.buffer[:0]
	var eolCount int64
	consumed := 0
	for _, b := range raw {
		if b == '\n' {
			out = append(out, '\r', '\n')
			eolCount++
		} else {
			out = append(out, b)
		}
		consumed++
		if len(out) >= cap(req.buffer)-1 {
			break
		}
	}
	return Result{BytesTransferred: len(out), NewOffset: req.writeOrReadFromOffset + int64(consumed), EOLCount: eolCount}
}
