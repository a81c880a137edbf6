package database

import (
	"context"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/Jose00521/Raffle-sub003/internal/global"
	"github.com/Jose00521/Raffle-sub003/internal/logger"
)

// EnsureDatabaseAndCollections đảm bảo database và các collection cần thiết
// tồn tại. Collection chưa có sẽ được tạo mới.
func EnsureDatabaseAndCollections(client *mongo.Client) error {
	dbName := global.ServerConfig.MongoDB_DBName

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db := client.Database(dbName)

	// Danh sách collection lấy từ các field của global.MongoDB_ColNames
	collections := []string{}
	v := reflect.ValueOf(global.MongoDB_ColNames)
	for i := 0; i < v.NumField(); i++ {
		collections = append(collections, v.Field(i).String())
	}

	collList, err := db.ListCollectionNames(ctx, bson.M{})
	if err != nil {
		return fmt.Errorf("failed to list collections: %w", err)
	}

	existing := map[string]bool{}
	for _, name := range collList {
		existing[name] = true
	}

	for _, collectionName := range collections {
		if collectionName == "" || existing[collectionName] {
			continue
		}
		logger.GetAppLogger().Infof("Collection %s chưa tồn tại, tạo mới.", collectionName)
		if err := db.CreateCollection(ctx, collectionName); err != nil {
			return fmt.Errorf("failed to create collection %s: %w", collectionName, err)
		}
	}

	logger.GetAppLogger().Infof("Database and collections are ensured in database: %s", dbName)
	return nil
}

// indexSpec mô tả một index trích xuất từ struct tag `index:"..."`.
// Cú pháp tag, nhiều cấu hình phân cách bởi ';':
//   - unique            — index đơn unique
//   - single:1|-1       — index đơn theo thứ tự
//   - compound:<name>[:order] — tham gia index ghép <name> (unique khi name có hậu tố _unique)
//   - ttl:<seconds>     — TTL index
//   - sparse            — kết hợp với các loại trên
type indexSpec struct {
	keys    bson.D
	options *options.IndexOptions
	name    string
}

// parseIndexTag phân tách tag index thành danh sách cấu hình.
func parseIndexTag(tag string) []map[string]string {
	parts := strings.Split(tag, ";")
	result := []map[string]string{}
	for _, part := range parts {
		entry := map[string]string{}
		for _, subPart := range strings.Split(part, ",") {
			kv := strings.SplitN(subPart, ":", 2)
			if len(kv) == 2 {
				entry[kv[0]] = kv[1]
			} else {
				entry[kv[0]] = ""
			}
		}
		result = append(result, entry)
	}
	return result
}

// CreateIndexes tạo index cho collection từ struct tags của model.
// Index đã tồn tại với đúng tên sẽ được bỏ qua.
func CreateIndexes(ctx context.Context, collection *mongo.Collection, model interface{}) error {
	modelType := reflect.TypeOf(model)
	if modelType.Kind() == reflect.Ptr {
		modelType = modelType.Elem()
	}

	cursor, err := collection.Indexes().List(ctx)
	if err != nil {
		return fmt.Errorf("không thể lấy danh sách index: %w", err)
	}
	defer cursor.Close(ctx)

	existingIndexes := map[string]bool{}
	for cursor.Next(ctx) {
		var indexInfo bson.M
		if err := cursor.Decode(&indexInfo); err != nil {
			return fmt.Errorf("không thể giải mã thông tin index: %w", err)
		}
		if name, ok := indexInfo["name"].(string); ok {
			existingIndexes[name] = true
		}
	}

	var specs []indexSpec
	compoundKeys := map[string]bson.D{}
	compoundOrder := []string{}

	for i := 0; i < modelType.NumField(); i++ {
		field := modelType.Field(i)
		tag, ok := field.Tag.Lookup("index")
		if !ok {
			continue
		}
		bsonField := strings.Split(field.Tag.Get("bson"), ",")[0]
		if bsonField == "" || bsonField == "-" {
			continue
		}

		for _, cfg := range parseIndexTag(tag) {
			_, sparse := cfg["sparse"]

			if _, ok := cfg["unique"]; ok {
				specs = append(specs, indexSpec{
					keys:    bson.D{{Key: bsonField, Value: 1}},
					options: options.Index().SetName(bsonField + "_unique").SetUnique(true).SetSparse(sparse),
					name:    bsonField + "_unique",
				})
			}

			if orderStr, ok := cfg["single"]; ok {
				order := 1
				if orderStr == "-1" {
					order = -1
				}
				specs = append(specs, indexSpec{
					keys:    bson.D{{Key: bsonField, Value: order}},
					options: options.Index().SetName(bsonField + "_1").SetSparse(sparse),
					name:    bsonField + "_1",
				})
			}

			if name, ok := cfg["compound"]; ok && name != "" {
				if _, seen := compoundKeys[name]; !seen {
					compoundOrder = append(compoundOrder, name)
				}
				compoundKeys[name] = append(compoundKeys[name], bson.E{Key: bsonField, Value: 1})
			}

			if ttlStr, ok := cfg["ttl"]; ok && ttlStr != "" {
				seconds, err := strconv.Atoi(ttlStr)
				if err != nil {
					return fmt.Errorf("tag ttl không hợp lệ trên field %s: %w", field.Name, err)
				}
				specs = append(specs, indexSpec{
					keys:    bson.D{{Key: bsonField, Value: 1}},
					options: options.Index().SetName(bsonField + "_ttl").SetExpireAfterSeconds(int32(seconds)),
					name:    bsonField + "_ttl",
				})
			}
		}
	}

	// Index ghép: unique khi tên có hậu tố _unique
	for _, name := range compoundOrder {
		opts := options.Index().SetName(name)
		if strings.HasSuffix(name, "_unique") {
			opts = opts.SetUnique(true)
		}
		specs = append(specs, indexSpec{keys: compoundKeys[name], options: opts, name: name})
	}

	for _, spec := range specs {
		if existingIndexes[spec.name] {
			continue
		}
		if _, err := collection.Indexes().CreateOne(ctx, mongo.IndexModel{
			Keys:    spec.keys,
			Options: spec.options,
		}); err != nil {
			return fmt.Errorf("không thể tạo index %s: %w", spec.name, err)
		}
		logger.GetAppLogger().Infof("Đã tạo index %s cho collection %s", spec.name, collection.Name())
	}

	return nil
}
