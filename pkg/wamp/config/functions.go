package config

import (
	"github.com/hashicorp/go-cty-funcs/crypto"
	"github.com/hashicorp/go-cty-funcs/encoding"
	"github.com/hashicorp/go-cty-funcs/filesystem"
	"github.com/hashicorp/go-cty-funcs/uuid"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/function"
	"github.com/zclconf/go-cty/cty/function/stdlib"
)

// GetFunctions returns the functions available to config expressions,
// mostly for assembling credentials and hello details.
func GetFunctions() map[string]function.Function {
	return map[string]function.Function{
		// String functions
		"upper":     stdlib.UpperFunc,
		"lower":     stdlib.LowerFunc,
		"split":     stdlib.SplitFunc,
		"join":      stdlib.JoinFunc,
		"chomp":     stdlib.ChompFunc,
		"trimspace": stdlib.TrimSpaceFunc,
		"replace":   stdlib.ReplaceFunc,
		"format":    stdlib.FormatFunc,

		// Collection functions
		"coalesce": stdlib.CoalesceFunc,
		"concat":   stdlib.ConcatFunc,
		"keys":     stdlib.KeysFunc,
		"length":   stdlib.LengthFunc,
		"lookup":   stdlib.LookupFunc,
		"merge":    stdlib.MergeFunc,

		// Encoding functions
		"jsondecode":   stdlib.JSONDecodeFunc,
		"jsonencode":   stdlib.JSONEncodeFunc,
		"base64decode": encoding.Base64DecodeFunc,
		"base64encode": encoding.Base64EncodeFunc,
		"urlencode":    encoding.URLEncodeFunc,

		// Type conversion functions
		"tostring": stdlib.MakeToFunc(cty.String),
		"tonumber": stdlib.MakeToFunc(cty.Number),
		"tobool":   stdlib.MakeToFunc(cty.Bool),

		// Crypto functions
		"md5":    crypto.Md5Func,
		"sha1":   crypto.Sha1Func,
		"sha256": crypto.Sha256Func,
		"sha512": crypto.Sha512Func,

		// Filesystem functions
		"file":       filesystem.MakeFileFunc(".", false),
		"abspath":    filesystem.AbsPathFunc,
		"basename":   filesystem.BasenameFunc,
		"dirname":    filesystem.DirnameFunc,
		"pathexpand": filesystem.PathExpandFunc,

		"uuidv4": uuid.V4Func,
	}
}
